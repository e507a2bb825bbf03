package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/synapse/internal/agent"
	"github.com/rahul/synapse/internal/gateway"
	"github.com/rahul/synapse/internal/observability"
)

func (s *ServeCmd) Run(cli *CLI) error {
	observability.PrintBanner()
	if !s.NoDashboard {
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	}

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := gateway.NewRouter()
	brain := a.assistant(router)

	var gateways []gateway.Messenger
	if tgCfg, ok := cfg.GetGatewayConfig("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, brain)
		if err != nil {
			return err
		}
		router.Add("telegram", tg)
		gateways = append(gateways, tg)
	}
	if dcCfg, ok := cfg.GetGatewayConfig("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, brain)
		if err != nil {
			return err
		}
		router.Add("discord", dc)
		gateways = append(gateways, dc)
	}
	if len(gateways) == 0 {
		log.Println("Warning: no gateway enabled; only scheduled tasks will run")
	}

	scheduler := agent.NewScheduler(brain, a.history, router)
	go scheduler.Start(ctx)

	if !s.NoDashboard {
		go ticker(ctx, time.Second, observability.PrintLiveStatus)
	}
	go ticker(ctx, 30*time.Second, func() {
		observability.Heartbeat()
		a.logger.LogHeartbeat()
	})

	for _, g := range gateways {
		go func() {
			if err := g.Start(ctx); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	for _, g := range gateways {
		if err := g.Stop(); err != nil {
			log.Printf("Error stopping gateway: %v", err)
		}
	}

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
	return nil
}
