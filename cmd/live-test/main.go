// Live session smoke test: streams a synthetic microphone tone into a
// voice session and prints transcripts, scheduled audio and tool calls.
// Useful for verifying connectivity and barge-in behavior without a
// browser.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/config"
	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/capture"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/live"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/playback"
)

// printSink logs scheduled playback instead of producing sound.
type printSink struct{}

func (printSink) Play(u *playback.Unit) {
	fmt.Printf("▶ audio unit at t=%.2fs (%.2fs)\n", u.StartAt, u.Duration())
}

func (printSink) Stop(u *playback.Unit) {
	fmt.Printf("■ audio unit stopped at t=%.2fs\n", u.StartAt)
}

func main() {
	duration := flag.Duration("duration", 30*time.Second, "How long to run")
	tone := flag.Float64("tone", 440, "Synthetic microphone tone frequency (Hz)")
	flag.Parse()

	log.Init(config.Env("LOG_LEVEL", "info"))

	apiKey := config.GeminiAPIKey()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := playback.NewScheduler(playback.NewSystemClock(), printSink{})

	session, err := live.NewSession(live.Config{APIKey: apiKey}, live.Callbacks{
		OnAudioOut: func(pcm16 []byte) {
			buf, err := pcm.Decode(pcm16, pcm.OutputRate, 1)
			if err != nil {
				return
			}
			sched.Enqueue(buf)
		},
		OnTranscript: func(role live.Role, text string, final bool) {
			if final {
				fmt.Printf("[%s] %s\n", role, text)
			}
		},
		OnInterrupted: func() {
			fmt.Println("-- interrupted --")
			sched.InterruptAll()
		},
		OnError: func(err error) {
			fmt.Printf("session error: %v\n", err)
			cancel()
		},
	})
	if err != nil {
		stdlog.Fatalf("session: %v", err)
	}

	searcher := archive.NewClient(config.BridgeURL())
	name, desc, params := archive.ToolDeclaration()
	session.RegisterTool(live.Tool{
		Name:        name,
		Description: desc,
		Parameters:  params,
		Handler:     searcher.ToolHandler(),
	})

	if err := session.Start(ctx); err != nil {
		stdlog.Fatalf("start: %v", err)
	}
	defer session.Stop()

	source, err := capture.NewMockSource(capture.DefaultConfig(), capture.WithSineWave(*tone))
	if err != nil {
		stdlog.Fatalf("source: %v", err)
	}
	defer source.Close()

	pump := capture.NewMicPump(source, func(pcm16 []byte) {
		if err := session.SendAudio(pcm16); err != nil {
			log.Debug("audio send failed", "error", err)
		}
	})
	if err := pump.Start(ctx); err != nil {
		stdlog.Fatalf("mic pump: %v", err)
	}
	defer pump.Stop()

	fmt.Printf("streaming %.0fHz tone for %s, Ctrl-C to stop\n", *tone, *duration)

	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}

	fmt.Printf("completed turns: %d, mic level: %.3f\n", session.Turns(), pump.Level())
}
