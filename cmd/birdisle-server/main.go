package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/birdisle/birdisle"
)

func main() {
	var configPath = flag.String("config", "", "Path to a YAML configuration file")
	var addr = flag.String("addr", "", "Listen address, overrides the config file (default 127.0.0.1:0)")
	var versionFlag = flag.Bool("version", false, "Print version information and exit")

	flag.Parse()

	if *versionFlag {
		for key, value := range birdisle.VersionInfo() {
			fmt.Printf("%s: %s\n", key, value)
		}
		os.Exit(0)
	}

	cfg := &birdisle.Config{}
	if *configPath != "" {
		loaded, err := birdisle.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	opts := cfg.Options(os.Stderr)
	opts = append(opts, birdisle.WithErrorHandler(func(err error) {
		log.Printf("birdisle: %v", err)
	}))

	inst, err := birdisle.New(opts...)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// The address goes to stdout so wrappers can pick up an ephemeral port
	fmt.Println(inst.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := inst.Close(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}
