package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prite36/cropsense/internal/logging"
	"github.com/prite36/cropsense/internal/models"
)

// PinLister is the read side of the pin registry.
type PinLister interface {
	ListBySite(ctx context.Context, siteID string) ([]models.PinConfig, error)
}

// DeviceReader is the read side of the device cloud.
type DeviceReader interface {
	ReadPin(ctx context.Context, token, pin string) (string, error)
	IsReachable(ctx context.Context, token string) bool
}

// Reading pairs a pin with the value observed in one poll. Unavailable or
// non-numeric values are reported as 0 with Available=false.
type Reading struct {
	models.PinConfig
	Value     float64 `json:"value"`
	Raw       string  `json:"raw"`
	Available bool    `json:"available"`
}

// Snapshot is the result of one poll cycle for a site.
type Snapshot struct {
	SiteID   string    `json:"siteId"`
	Online   bool      `json:"online"`
	PolledAt time.Time `json:"polledAt"`
	Readings []Reading `json:"sensors"`
}

// Values returns pin address -> value.
func (s *Snapshot) Values() map[string]float64 {
	values := make(map[string]float64, len(s.Readings))
	for _, r := range s.Readings {
		values[r.Pin] = r.Value
	}
	return values
}

type Aggregator struct {
	pins           PinLister
	device         DeviceReader
	maxConcurrency int
	now            func() time.Time
	logger         *zap.Logger
}

func NewAggregator(pins PinLister, device DeviceReader, maxConcurrency int, logger *zap.Logger) *Aggregator {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Aggregator{
		pins:           pins,
		device:         device,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
		logger:         logger,
	}
}

// PollSite reads every registered pin of a site. It returns exactly one reading per pin;
// device-cloud failures degrade to offline / zero values. Only a registry failure is an error.
func (a *Aggregator) PollSite(ctx context.Context, siteID, token string) (*Snapshot, error) {
	log := logging.WithSite(a.logger, siteID)

	online := a.device.IsReachable(ctx, token)

	pins, err := a.pins.ListBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	readings := make([]Reading, len(pins))
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)

	for i, pin := range pins {
		i, pin := i, pin
		g.Go(func() error {
			readings[i] = a.readOne(ctx, log, token, pin)
			return nil
		})
	}
	_ = g.Wait()

	snapshot := &Snapshot{
		SiteID:   siteID,
		Online:   online,
		PolledAt: a.now(),
		Readings: readings,
	}
	log.Debug("site polled", zap.Bool("online", online), zap.Int("pins", len(readings)))
	return snapshot, nil
}

func (a *Aggregator) readOne(ctx context.Context, log *zap.Logger, token string, pin models.PinConfig) Reading {
	reading := Reading{PinConfig: pin}

	raw, err := a.device.ReadPin(ctx, token, pin.Pin)
	if err != nil {
		log.Debug("pin read failed, using 0", zap.String("pin", pin.Pin), zap.Error(err))
		return reading
	}

	reading.Raw = raw
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Debug("pin value is not numeric, using 0", zap.String("pin", pin.Pin), zap.String("raw", raw))
		return reading
	}
	reading.Value = value
	reading.Available = true
	return reading
}
