//go:build !linux

package loadgov

// sysinfoSampler is unavailable off Linux; reporting zero load keeps the
// governor permissive so the outstanding-job cap remains the only limiter.
type sysinfoSampler struct{}

func (sysinfoSampler) Sample() (float64, error) {
	return 0, nil
}
