// cmd/sespcl/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/truesip/sespcl/pkg/common"
	"github.com/truesip/sespcl/pkg/config"
	"github.com/truesip/sespcl/pkg/log"
	"github.com/truesip/sespcl/pkg/metrics"
	"github.com/truesip/sespcl/pkg/sip/client"
	"github.com/truesip/sespcl/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")

	testConnectivity := flag.Bool("test-connectivity", false, "Probe the trunk proxy and exit")
	register := flag.Bool("register", false, "Register with the trunk and exit")

	callTo := flag.String("call-to", "", "Destination number or user to call")
	callFrom := flag.String("call-from", "", "Caller identity (defaults to the configured username)")
	text := flag.String("text", "", "Text to speak to the callee")
	voice := flag.String("voice", "", "TTS voice name (only with -text)")
	audioURL := flag.String("audio-url", "", "Audio file URL to play instead of TTS")
	transferTo := flag.String("transfer-to", "", "Transfer target offered to the callee")
	transferDigit := flag.String("transfer-digit", "", "DTMF digit that triggers the transfer")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(log.Config{
		Development: cfg.Log.Development,
		Level:       parseLevel(cfg.LogLevel),
		FilePath:    cfg.Log.FilePath,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.InitMetrics()
	if cfg.Metrics.Enabled {
		server := metrics.StartMetricsServer(cfg.Metrics.BindAddr, logger.Logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metrics.Shutdown(ctx, server, logger.Logger)
		}()
	}

	var breaker *common.CircuitBreaker
	if cfg.SIP.CircuitBreaker.Enabled {
		breaker = common.NewCircuitBreaker("trunk", common.CircuitBreakerConfig{
			FailureThreshold: cfg.SIP.CircuitBreaker.FailureThreshold,
			ResetTimeout:     time.Duration(cfg.SIP.CircuitBreaker.ResetSeconds) * time.Second,
			HalfOpenMaxReqs:  cfg.SIP.CircuitBreaker.HalfOpenMax,
		}, logger.Logger)
	}

	c := client.New(client.Config{
		ProxyHost:        cfg.SIP.ProxyHost,
		ProxyPort:        cfg.SIP.ProxyPort,
		LocalPort:        cfg.SIP.LocalPort,
		Username:         cfg.SIP.Username,
		Password:         cfg.SIP.Password,
		Domain:           cfg.SIP.Domain,
		DisplayName:      cfg.SIP.DisplayName,
		UserAgent:        cfg.SIP.UserAgent,
		SkipRegister:     cfg.SIP.SkipRegister,
		SignalingTimeout: cfg.SIP.SignalingTimeout(),
		ProbeTimeout:     cfg.SIP.ProbeTimeout(),
	}, store.NewMemoryStore(logger.Logger), breaker, logger)

	ctx := context.Background()

	switch {
	case *testConnectivity:
		os.Exit(runConnectivityTest(ctx, c))

	case *register:
		os.Exit(runRegister(ctx, c, logger))

	case *callTo != "":
		os.Exit(runCall(ctx, c, cfg, callArgs{
			to:            *callTo,
			from:          *callFrom,
			text:          *text,
			voice:         *voice,
			audioURL:      *audioURL,
			transferTo:    *transferTo,
			transferDigit: *transferDigit,
		}, logger))

	default:
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -test-connectivity, -register or -call-to")
		flag.Usage()
		os.Exit(2)
	}
}

func runConnectivityTest(ctx context.Context, c *client.Client) int {
	result := c.TestConnectivity(ctx)
	printJSON(result)
	if !result.Success {
		return 1
	}
	return 0
}

func runRegister(ctx context.Context, c *client.Client, logger *log.Logger) int {
	ok, err := c.Register(ctx)
	if err != nil {
		logger.Error("Registration failed", zap.Error(err))
		return 1
	}
	printJSON(map[string]bool{"registered": ok})
	if !ok {
		return 1
	}
	return 0
}

type callArgs struct {
	to, from      string
	text, voice   string
	audioURL      string
	transferTo    string
	transferDigit string
}

func runCall(ctx context.Context, c *client.Client, cfg *config.Config, args callArgs, logger *log.Logger) int {
	if args.text == "" && args.audioURL == "" {
		fmt.Fprintln(os.Stderr, "A call needs either -text or -audio-url")
		return 2
	}
	if args.text != "" && args.audioURL != "" {
		fmt.Fprintln(os.Stderr, "-text and -audio-url are mutually exclusive")
		return 2
	}
	if (args.transferTo == "") != (args.transferDigit == "") {
		fmt.Fprintln(os.Stderr, "-transfer-to and -transfer-digit must be given together")
		return 2
	}
	if args.from == "" {
		args.from = cfg.SIP.Username
	}

	result, err := c.PlaceCall(ctx, args.to, args.from, client.Payload{
		Text:     args.text,
		Voice:    args.voice,
		AudioURL: args.audioURL,
	}, client.CallOptions{
		TransferTo:    args.transferTo,
		TransferDigit: args.transferDigit,
	})
	if err != nil {
		logger.Error("Call failed", zap.Error(err))
		return 1
	}

	printJSON(map[string]string{
		"call_id": result.CallID,
		"status":  result.Status,
	})
	return 0
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
