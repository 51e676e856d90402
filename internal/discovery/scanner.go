package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prite36/cropsense/internal/logging"
	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/registry"
)

// PinRegistry is the part of the registry the scanner writes to.
type PinRegistry interface {
	Exists(ctx context.Context, siteID, pin string) (bool, error)
	Add(ctx context.Context, pin *models.PinConfig) error
}

type PinReader interface {
	ReadPin(ctx context.Context, token, pin string) (string, error)
}

// Scanner probes candidate pin addresses and registers the populated ones it does not know yet.
type Scanner struct {
	registry       PinRegistry
	reader         PinReader
	maxConcurrency int
	logger         *zap.Logger
}

func NewScanner(reg PinRegistry, reader PinReader, maxConcurrency int, logger *zap.Logger) *Scanner {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scanner{
		registry:       reg,
		reader:         reader,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// DefaultAddressSpace returns the virtual pins v0..v{n-1}.
func DefaultAddressSpace(n int) []string {
	addresses := make([]string, 0, n)
	for i := 0; i < n; i++ {
		addresses = append(addresses, fmt.Sprintf("v%d", i))
	}
	return addresses
}

// DefaultLabel is the label given to a discovered pin, e.g. "New Sensor V3".
func DefaultLabel(pin string) string {
	return "New Sensor " + strings.ToUpper(pin)
}

// Scan returns the pin configs created by this call. Pins that were already
// registered are not returned. Probe failures only skip the failing address.
func (s *Scanner) Scan(ctx context.Context, siteID, token string, addresses []string) ([]models.PinConfig, error) {
	log := logging.WithSite(s.logger, siteID)
	log.Info("starting pin scan", zap.String("token", logging.MaskToken(token)), zap.Int("candidates", len(addresses)))

	found := make([]bool, len(addresses))
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			value, err := s.reader.ReadPin(ctx, token, address)
			if err != nil {
				log.Debug("no data on pin", zap.String("pin", address), zap.Error(err))
				return nil
			}
			if strings.TrimSpace(value) == "" {
				return nil
			}
			log.Debug("found pin", zap.String("pin", address), zap.String("value", value))
			found[i] = true
			return nil
		})
	}
	_ = g.Wait()

	created := []models.PinConfig{}
	for i, address := range addresses {
		if !found[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}

		pin, err := s.register(ctx, siteID, address)
		if err != nil {
			log.Warn("failed to register discovered pin", zap.String("pin", address), zap.Error(err))
			continue
		}
		if pin != nil {
			created = append(created, *pin)
		}
	}

	log.Info("scan complete", zap.Int("new_pins", len(created)))
	return created, nil
}

// register returns nil without error when the pin is already known.
func (s *Scanner) register(ctx context.Context, siteID, address string) (*models.PinConfig, error) {
	exists, err := s.registry.Exists(ctx, siteID, address)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	pin := models.NewPinConfig(siteID, address, DefaultLabel(models.NormalizePin(address)))
	if err := s.registry.Add(ctx, &pin); err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			// another scan registered it first
			return nil, nil
		}
		return nil, err
	}
	return &pin, nil
}
