package features

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/ecg/biquad"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/quality"
)

// minBeatsForRate is the beat count under which the heart rate is
// reported as unknown rather than computed from too little evidence.
const minBeatsForRate = 3

// Extractor detects QRS complexes and derives rhythm and interval
// features. Output is deterministic for a given recording and report.
type Extractor struct {
	settings conf.FeatureSettings
	logger   *slog.Logger
}

// NewExtractor creates a feature extractor with the given settings.
func NewExtractor(settings conf.FeatureSettings) *Extractor {
	return &Extractor{
		settings: settings,
		logger:   logging.ForService("features"),
	}
}

// Extract computes the feature set for a recording, restricted to the
// samples the quality report marks usable.
func (e *Extractor) Extract(ctx context.Context, rec *ecg.Recording, report *quality.Report) (*Set, error) {
	if rec == nil || rec.NumSamples() == 0 {
		return nil, errors.Newf("cannot extract features from an empty recording").
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}
	if report == nil {
		return nil, errors.Newf("quality report is required for feature extraction").
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}

	sampleRate := float64(rec.SampleRate())

	// Band-pass every lead concurrently. Per-lead filtering is
	// independent work; parallelizing it does not change the output.
	leads := rec.Leads()
	filtered := make([][]float64, len(leads))
	morphology := make([]LeadMorphology, len(leads))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i := range leads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bp, err := biquad.NewQRSBandPass(sampleRate, e.settings.BandLowHz, e.settings.BandHighHz, 1)
			if err != nil {
				return errors.New(err).
					Component("features").
					Category(errors.CategoryConfiguration).
					Context("lead", leads[i].Name).
					Build()
			}
			out := bp.Filtered(leads[i].Samples)

			mu.Lock()
			filtered[i] = out
			morphology[i] = leadMorphology(leads[i].Name, out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	detIdx := e.detectionLeadIndex(leads)
	detLead := leads[detIdx]
	detFiltered := filtered[detIdx]

	mask := report.UsableMask(rec.NumSamples())
	peaks := e.detectPeaks(detFiltered, mask, sampleRate)

	beats := make([]Beat, 0, len(peaks))
	for _, p := range peaks {
		beat := e.refineBeat(detLead.Samples, detFiltered, p, sampleRate)
		// Strictly increasing beats: a refined onset may not reach back
		// into the previous beat.
		if n := len(beats); n > 0 && beat.Onset <= beats[n-1].Offset {
			beat.Onset = beats[n-1].Offset + 1
			if beat.Onset > beat.Peak {
				continue
			}
		}
		beats = append(beats, beat)
	}

	set := &Set{
		DetectionLead: detLead.Name,
		Beats:         beats,
		Morphology:    morphology,
	}

	e.deriveRates(set, sampleRate)
	e.deriveIntervals(set, detLead.Samples, sampleRate)

	e.logger.Debug("feature extraction complete",
		"recording_id", rec.ID(),
		"lead", detLead.Name,
		"beats", len(beats),
		"low_beat_count", set.LowBeatCount,
	)

	return set, nil
}

// detectionLeadIndex picks the configured primary lead when present,
// otherwise the first lead.
func (e *Extractor) detectionLeadIndex(leads []ecg.Lead) int {
	for i := range leads {
		if leads[i].Name == e.settings.PrimaryLead {
			return i
		}
	}
	return 0
}

// detectPeaks finds QRS energy maxima above an adaptive threshold. The
// threshold tracks trailing signal and noise peak averages so gain drift
// does not swamp detection.
func (e *Extractor) detectPeaks(bandpassed []float64, usable []bool, sampleRate float64) []int {
	n := len(bandpassed)
	if n == 0 {
		return nil
	}

	// Squared energy with moving-window integration.
	integLen := max(1, int(float64(e.settings.IntegrationMs)/1000.0*sampleRate))
	integrated := make([]float64, n)
	windowSum := 0.0
	for i := range n {
		sq := bandpassed[i] * bandpassed[i]
		windowSum += sq
		if i >= integLen {
			windowSum -= bandpassed[i-integLen] * bandpassed[i-integLen]
		}
		integrated[i] = windowSum / float64(integLen)
	}

	// Seed the running estimates from the first two seconds.
	seedLen := min(n, int(2.0*sampleRate))
	signalPeak := 0.0
	for i := range seedLen {
		if integrated[i] > signalPeak {
			signalPeak = integrated[i]
		}
	}
	noisePeak := signalPeak * 0.1
	threshold := noisePeak + e.settings.ThresholdFactor*(signalPeak-noisePeak)

	refractory := int(float64(e.settings.RefractoryMs) / 1000.0 * sampleRate)
	lastPeak := -refractory

	var peaks []int
	for i := 1; i < n-1; i++ {
		isLocalMax := integrated[i] >= integrated[i-1] && integrated[i] > integrated[i+1]
		if !isLocalMax {
			continue
		}
		if i-lastPeak < refractory {
			continue
		}

		if integrated[i] > threshold {
			if usable[i] {
				peaks = append(peaks, i)
				lastPeak = i
			}
			// Exponential trailing average of accepted signal peaks.
			signalPeak = 0.875*signalPeak + 0.125*integrated[i]
		} else {
			noisePeak = 0.875*noisePeak + 0.125*integrated[i]
		}
		threshold = noisePeak + e.settings.ThresholdFactor*(signalPeak-noisePeak)
	}
	return peaks
}

// refineBeat locates the true R peak near an energy maximum and pairs it
// with onset/offset via slope-reversal search in a bounded neighborhood.
func (e *Extractor) refineBeat(raw, bandpassed []float64, energyIdx int, sampleRate float64) Beat {
	window := max(1, int(float64(e.settings.SearchWindowMs)/1000.0*sampleRate))
	n := len(bandpassed)

	// The integration window delays the energy peak relative to the R
	// wave; search backwards as well as forwards.
	lo := max(0, energyIdx-window)
	hi := min(n-1, energyIdx+window)

	peak := lo
	for i := lo; i <= hi; i++ {
		if math.Abs(bandpassed[i]) > math.Abs(bandpassed[peak]) {
			peak = i
		}
	}

	onset := peak
	for i := peak - 1; i >= max(0, peak-window); i-- {
		if math.Abs(bandpassed[i]) > math.Abs(bandpassed[onset]) {
			// Slope reversed upwards again: stop before the previous wave.
			break
		}
		onset = i
		if math.Abs(bandpassed[i]) < 0.05*math.Abs(bandpassed[peak]) {
			break
		}
	}

	offset := peak
	for i := peak + 1; i <= min(n-1, peak+window); i++ {
		if math.Abs(bandpassed[i]) > math.Abs(bandpassed[offset]) {
			break
		}
		offset = i
		if math.Abs(bandpassed[i]) < 0.05*math.Abs(bandpassed[peak]) {
			break
		}
	}

	return Beat{
		Onset:     onset,
		Peak:      peak,
		Offset:    offset,
		Amplitude: raw[peak],
	}
}

// deriveRates fills instantaneous and median heart rate plus RR
// variability. The median, not the mean, resists ectopic-beat outliers.
func (e *Extractor) deriveRates(set *Set, sampleRate float64) {
	beats := set.Beats
	if len(beats) < minBeatsForRate {
		set.LowBeatCount = true
		return
	}

	rrSamples := make([]float64, 0, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		rr := float64(beats[i].Peak - beats[i-1].Peak)
		rrSamples = append(rrSamples, rr)
		set.InstantRates = append(set.InstantRates, 60.0*sampleRate/rr)
	}

	trailing := set.InstantRates
	if len(trailing) > e.settings.MedianBeats {
		trailing = trailing[len(trailing)-e.settings.MedianBeats:]
	}
	hr := median(trailing)
	set.HeartRate = &hr

	// RMSSD over successive RR differences, in milliseconds.
	sumSq := 0.0
	for i := 1; i < len(rrSamples); i++ {
		d := (rrSamples[i] - rrSamples[i-1]) / sampleRate * 1000.0
		sumSq += d * d
	}
	if len(rrSamples) > 1 {
		set.RMSSD = math.Sqrt(sumSq / float64(len(rrSamples)-1))
	}
}

// deriveIntervals estimates PR, QRS and QT durations averaged across
// beats. These are screening-grade estimates from a single lead, not
// caliper measurements.
func (e *Extractor) deriveIntervals(set *Set, raw []float64, sampleRate float64) {
	if len(set.Beats) < minBeatsForRate {
		return
	}

	msPerSample := 1000.0 / sampleRate
	var qrsSum, qtSum, prSum float64
	var qtCount, prCount int

	for _, b := range set.Beats {
		qrsSum += float64(b.Offset-b.Onset) * msPerSample

		// T-wave end search: largest deflection in a bounded window after
		// the QRS offset.
		tLo := b.Offset + int(0.08*sampleRate)
		tHi := b.Offset + int(0.40*sampleRate)
		if tHi < len(raw) {
			tPeak := tLo
			for i := tLo; i <= tHi; i++ {
				if math.Abs(raw[i]) > math.Abs(raw[tPeak]) {
					tPeak = i
				}
			}
			qtSum += float64(tPeak-b.Onset)*msPerSample + 80.0 // T peak to T end approximation
			qtCount++
		}

		// P-wave search: largest deflection in a bounded window before
		// the QRS onset.
		pLo := b.Onset - int(0.20*sampleRate)
		pHi := b.Onset - int(0.04*sampleRate)
		if pLo >= 0 && pHi > pLo {
			pPeak := pLo
			for i := pLo; i <= pHi; i++ {
				if math.Abs(raw[i]) > math.Abs(raw[pPeak]) {
					pPeak = i
				}
			}
			prSum += float64(b.Onset-pPeak) * msPerSample
			prCount++
		}
	}

	qrs := qrsSum / float64(len(set.Beats))
	set.QRSDurationMs = &qrs
	if qtCount > 0 {
		qt := qtSum / float64(qtCount)
		set.QTIntervalMs = &qt
	}
	if prCount > 0 {
		pr := prSum / float64(prCount)
		set.PRIntervalMs = &pr
	}
}

func leadMorphology(name string, bandpassed []float64) LeadMorphology {
	m := LeadMorphology{Lead: name}
	if len(bandpassed) == 0 {
		return m
	}
	sumAbs := 0.0
	for _, s := range bandpassed {
		a := math.Abs(s)
		sumAbs += a
		if a > m.PeakAbsQRS {
			m.PeakAbsQRS = a
		}
	}
	m.MeanAbsQRS = sumAbs / float64(len(bandpassed))
	return m
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
