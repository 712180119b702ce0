// mgmtcored: демон ядра управления. Поднимает дерево тактирования, выставляет
// начальную рабочую точку CPU и запускает тепловой монитор.
//
// Использование:
//
//	mgmtcored -config mgmtcore.yml          работа до SIGINT/SIGTERM
//	mgmtcored -backend sim -list            вывести дерево тактов и выйти
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/shiwa/mgmtcore/internal/config"
	"github.com/shiwa/mgmtcore/internal/logger"
	"github.com/shiwa/mgmtcore/pkg/mgmtcore"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию mgmtcore.yml)")
	backend := flag.String("backend", "", "бэкенд регистров: sim, mmio или i2c (переопределяет config)")
	dryRun := flag.Bool("dry-run", false, "при критической температуре только писать в лог, не выключать питание")
	list := flag.Bool("list", false, "вывести все такты с частотой и состоянием и выйти")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if *backend != "" {
		cfg.Registers.Backend = *backend
	}
	if *dryRun {
		cfg.Shutdown.DryRun = true
	}
	if *quiet {
		cfg.Quiet = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Quiet = cfg.Quiet

	if *list {
		if err := listClocks(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}
	runDaemonWithShutdown(cfg)
}

// loadConfig возвращает nil без ошибки, если файла по умолчанию нет.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "mgmtcore.yml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}
	}
	return config.Load(path)
}

func listClocks(cfg *config.Config) error {
	s, err := mgmtcore.Build(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CLOCK\tRATE\tSTATE\tREFS")
	for _, h := range s.Board.Clocks() {
		info, err := h.Info()
		if err != nil {
			return err
		}
		rate := "-"
		if r, err := h.Rate(); err == nil {
			rate = r.String()
		}
		state := "off"
		if on, err := h.State(); err != nil {
			state = "fault"
		} else if on {
			state = "on"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", info.Name, rate, state, h.Refcount())
	}
	return w.Flush()
}

func runDaemonWithShutdown(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	var last mgmtcore.Report
	observer := func(r mgmtcore.Report) {
		if r.ThrottleLevel != last.ThrottleLevel || r.Failed != last.Failed {
			logger.Info("%v, throttle level %d, cpu %v (opp %d), %d/%d sensors failed",
				r.Temperature, r.ThrottleLevel, r.CPURate, r.OPP, r.Failed, r.Sensors)
		}
		last = r
	}
	err := mgmtcore.RunDaemon(ctx, cfg, observer)
	switch {
	case errors.Is(err, mgmtcore.ErrHalted):
		logger.Error("monitor halted at %v", last.Temperature)
		os.Exit(1)
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("%v", err)
		os.Exit(1)
	}
}
