// Package mock provides a scripted wake-word detector for tests.
package mock

// Detector pops one score map per Predict call and returns empty scores
// once the script runs out. Calls counts every invocation, scripted or
// not.
type Detector struct {
	Scores []map[string]float64
	Calls  int
}

func (d *Detector) Predict(_ []int16) map[string]float64 {
	d.Calls++

	if len(d.Scores) == 0 {
		return map[string]float64{}
	}

	scores := d.Scores[0]
	d.Scores = d.Scores[1:]

	return scores
}
