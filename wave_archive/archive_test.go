package wave_archive

import (
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

func TestArchive_Save(t *testing.T) {
	t.Run("saved file decodes back to the captured samples", func(t *testing.T) {
		fileSys := afero.NewMemMapFs()

		archive, err := New(&Config{
			FileSys:    fileSys,
			Dir:        "captures",
			SampleRate: 16000,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		samples := []int16{0, 1000, -1000, 32767, -32768, 42}

		name, err := archive.Save(samples)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}

		if !strings.HasPrefix(name, "captures/utterance-") || !strings.HasSuffix(name, ".wav") {
			t.Errorf("unexpected archive file name %q", name)
		}

		file, err := fileSys.Open(name)
		if err != nil {
			t.Fatalf("opening archived file: %v", err)
		}

		defer file.Close()

		decoder := wav.NewDecoder(file)
		buf, err := decoder.FullPCMBuffer()
		if err != nil {
			t.Fatalf("decoding archived file: %v", err)
		}

		if decoder.SampleRate != 16000 || decoder.NumChans != 1 || decoder.BitDepth != 16 {
			t.Errorf("unexpected format: %d Hz, %d channels, %d bits",
				decoder.SampleRate, decoder.NumChans, decoder.BitDepth)
		}

		if len(buf.Data) != len(samples) {
			t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
		}

		for i, s := range samples {
			if int(s) != buf.Data[i] {
				t.Errorf("sample %d: expected %d, got %d", i, s, buf.Data[i])
			}
		}
	})

	t.Run("two saves produce distinct files", func(t *testing.T) {
		fileSys := afero.NewMemMapFs()

		archive, err := New(&Config{
			FileSys:    fileSys,
			Dir:        "captures",
			SampleRate: 16000,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		first, err := archive.Save([]int16{1})
		if err != nil {
			t.Fatalf("first Save: %v", err)
		}

		second, err := archive.Save([]int16{2})
		if err != nil {
			t.Fatalf("second Save: %v", err)
		}

		if first == second {
			t.Errorf("expected distinct file names, got %q twice", first)
		}
	})
}
