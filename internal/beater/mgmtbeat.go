// Package beater реализует интерфейс Beater (libbeat v7): запускает ядро
// управления и публикует событие после каждого опроса.
package beater

import (
	"context"
	"errors"
	"fmt"

	"github.com/elastic/beats/v7/libbeat/beat"
	"github.com/elastic/beats/v7/libbeat/common"
	"github.com/elastic/beats/v7/libbeat/logp"
	"github.com/shiwa/mgmtcore/internal/config"
	"github.com/shiwa/mgmtcore/pkg/mgmtcore"
	"periph.io/x/conn/v3/physic"
)

// Mgmtbeat реализует beat.Beater.
type Mgmtbeat struct {
	done   chan struct{}
	config *config.Config
	client beat.Client
}

// New создаёт Beater из секции mgmtbeat конфигурации Beat.
func New(b *beat.Beat, cfg *common.Config) (beat.Beater, error) {
	c := config.Default()
	if cfg.HasField("mgmtbeat") {
		sub, err := cfg.Child("mgmtbeat", -1)
		if err != nil {
			return nil, fmt.Errorf("mgmtbeat config: %w", err)
		}
		if err := sub.Unpack(c); err != nil {
			return nil, fmt.Errorf("parse mgmtbeat config: %w", err)
		}
	}
	config.ApplyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Mgmtbeat{done: make(chan struct{}), config: c}, nil
}

// Run крутит цикл опроса до Stop().
func (bt *Mgmtbeat) Run(b *beat.Beat) error {
	logp.Info("mgmtbeat is running (backend %s)", bt.config.Registers.Backend)
	var err error
	bt.client, err = b.Publisher.Connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-bt.done
		cancel()
	}()

	err = mgmtcore.RunDaemon(ctx, bt.config, func(r mgmtcore.Report) {
		bt.client.Publish(event(r))
	})
	switch {
	case errors.Is(err, mgmtcore.ErrHalted):
		logp.Warn("mgmtbeat: critical temperature, monitor halted")
		return err
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	}
	return nil
}

// Stop останавливает Run.
func (bt *Mgmtbeat) Stop() {
	if bt.client != nil {
		bt.client.Close()
	}
	close(bt.done)
}

func event(r mgmtcore.Report) beat.Event {
	return beat.Event{
		Timestamp: r.Time,
		Fields: common.MapStr{
			"type": "mgmtcore",
			"thermal": common.MapStr{
				"temperature_mc": int32(r.Temperature),
				"sensors":        r.Sensors,
				"failed":         r.Failed,
				"throttled":      r.Throttled,
				"throttle_level": r.ThrottleLevel,
				"original_opp":   r.OriginalOPP,
				"halted":         r.Halted,
			},
			"cpu": common.MapStr{
				"rate_hz": int64(r.CPURate / physic.Hertz),
				"opp":     r.OPP,
			},
		},
	}
}
