package actuator

import (
	"fmt"
	"sync"
	"time"

	"firewatch/internal/errors"
	"firewatch/internal/models"
)

// Buzzer holds the current actuator mode polled by the signaling device.
// Only the current mode is kept; it resets to OFF on restart.
type Buzzer struct {
	mu        sync.RWMutex
	mode      models.BuzzerMode
	updatedAt time.Time
	now       func() time.Time
}

// New returns a buzzer in OFF mode
func New() *Buzzer {
	return &Buzzer{
		mode: models.BuzzerOff,
		now:  time.Now,
	}
}

// Set changes the mode. Unknown modes return an invalid_mode error and
// leave the current mode untouched.
func (b *Buzzer) Set(mode string) (models.BuzzerMode, error) {
	parsed, ok := models.ParseBuzzerMode(mode)
	if !ok {
		return "", errors.New().WithData(errors.ErrInvalidMode, fmt.Sprintf("%q", mode))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if parsed != b.mode {
		b.updatedAt = b.now().UTC()
	}
	b.mode = parsed
	return parsed, nil
}

// Get returns the current mode
func (b *Buzzer) Get() models.BuzzerMode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// UpdatedAt returns when the mode last changed, zero if never
func (b *Buzzer) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}
