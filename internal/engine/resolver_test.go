package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/adlens/marketplace-crawler/internal/sitecfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver scripts PageDriver responses. WaitForSelector consumes the
// per-selector sequence one value per call; exhausted or unknown selectors
// report zero matches.
type fakeDriver struct {
	waits     map[string][]int
	counts    map[string]int
	signals   model.PageSignals
	elements  []model.RawElement
	url       string
	waitCalls []string
	waitErr   error
	plan      ExtractionPlan
}

func (d *fakeDriver) WaitForSelector(_ context.Context, selector string, _ time.Duration) (int, error) {
	d.waitCalls = append(d.waitCalls, selector)
	if d.waitErr != nil {
		return 0, d.waitErr
	}
	seq := d.waits[selector]
	if len(seq) == 0 {
		return 0, nil
	}
	d.waits[selector] = seq[1:]
	return seq[0], nil
}

func (d *fakeDriver) Count(_ context.Context, selector string) (int, error) {
	return d.counts[selector], nil
}

func (d *fakeDriver) ExtractElements(_ context.Context, plan ExtractionPlan) ([]model.RawElement, error) {
	d.plan = plan
	return d.elements, nil
}

func (d *fakeDriver) CollectSignals(_ context.Context, _ *sitecfg.SiteConfig) (model.PageSignals, error) {
	return d.signals, nil
}

func (d *fakeDriver) CurrentURL(_ context.Context) (string, error) {
	return d.url, nil
}

func TestWaitForContainerFirstLevelHit(t *testing.T) {
	driver := &fakeDriver{waits: map[string][]int{".primary": {4}}}

	res, err := WaitForContainer(context.Background(), driver,
		[]string{".primary", ".fallback"}, []time.Duration{100 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, ".primary", res.Selector)
	assert.Equal(t, 4, res.Matches)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{".primary"}, driver.waitCalls)
}

// The fallback selector only matches once the second, longer wait level is
// reached. Attempts counts timeout levels, not individual selector probes.
func TestWaitForContainerEscalation(t *testing.T) {
	driver := &fakeDriver{waits: map[string][]int{
		".a": {0, 0},
		".b": {0, 3},
	}}

	res, err := WaitForContainer(context.Background(), driver,
		[]string{".a", ".b"}, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, ".b", res.Selector)
	assert.Equal(t, 3, res.Matches)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 500*time.Millisecond, res.TimeoutUsed)
	assert.Equal(t, []string{".a", ".b", ".a", ".b"}, driver.waitCalls)
}

func TestWaitForContainerNotFound(t *testing.T) {
	driver := &fakeDriver{}

	res, err := WaitForContainer(context.Background(), driver,
		[]string{".a"}, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond})
	require.NoError(t, err)

	assert.False(t, res.Found())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 20*time.Millisecond, res.TimeoutUsed)
}

func TestWaitForContainerDriverError(t *testing.T) {
	driverErr := errors.New("tab crashed")
	driver := &fakeDriver{waitErr: driverErr}

	_, err := WaitForContainer(context.Background(), driver,
		[]string{".a"}, []time.Duration{10 * time.Millisecond})
	assert.ErrorIs(t, err, driverErr)
}

func TestWaitForContainerCancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	driver := &fakeDriver{}

	_, err := WaitForContainer(ctx, driver,
		[]string{".a"}, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindSelector(t *testing.T) {
	driver := &fakeDriver{counts: map[string]int{".second": 2}}

	selector, err := FindSelector(context.Background(), driver, []string{".first", ".second", ".third"})
	require.NoError(t, err)
	assert.Equal(t, ".second", selector)

	selector, err = FindSelector(context.Background(), driver, []string{".first", ".third"})
	require.NoError(t, err)
	assert.Equal(t, "", selector)
}
