package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"aide/internal/config"
	"aide/internal/types"
)

// runInteractive reads commands line by line until EOF or "quit". The
// config file is watched while the prompt is open: a model change applies
// to the running client without a restart.
func runInteractive() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		applyConfigReload(a, cfg)
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	fmt.Println("aide ready. Type a command, 'items' to list, 'quit' to exit.")

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\naide> ")
		if !in.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(in.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "items", "ls":
			for _, it := range a.manager.Items() {
				fmt.Println(formatItem(it))
			}
			continue
		}

		out, err := a.assistant.HandleCommand(ctx, line, 1.0)
		if err != nil {
			var ierr *types.InterpretationError
			if errors.As(err, &ierr) {
				fmt.Printf("Could not interpret that: %v\n", ierr.Err)
				continue
			}
			return err
		}
		if err := presentOutcome(ctx, out, in); err != nil {
			return err
		}
	}
}

// applyConfigReload applies the hot-reloadable subset of the config: the
// completion model. Store path and owner changes need a restart.
func applyConfigReload(a *app, cfg *config.Config) {
	type modelSetter interface {
		SetModel(string)
		GetModel() string
	}
	if ms, ok := a.client.(modelSetter); ok && cfg.LLM.Model != "" && cfg.LLM.Model != ms.GetModel() {
		logger.Info("config reloaded, switching model",
			zap.String("from", ms.GetModel()),
			zap.String("to", cfg.LLM.Model))
		ms.SetModel(cfg.LLM.Model)
	}
}
