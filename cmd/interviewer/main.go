// interviewer: voice-driven interview client.
// Submits authored questions to the interview backend, then runs the
// spoken session end to end: TTS playback, microphone streaming over the
// control channel, and a local web monitor with the live transcript.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/config"
	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/audio"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/backend"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/capture"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/channel"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/protocol"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/record"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/session"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/speech"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/transcript"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/web"
)

var (
	backendURL    = flag.String("backend", "", "interview backend base URL (overrides env)")
	preset        = flag.String("preset", "", "load questions from a backend preset ID")
	questionsFile = flag.String("questions", "", "file with one question per line")
	uiPort        = flag.Int("ui-port", 0, "local monitor port (overrides env)")
	micDevice     = flag.String("mic", "", "microphone device passed to ffmpeg")
	mockMic       = flag.Bool("mock-mic", false, "use a synthetic tone instead of the microphone")
	noAudio       = flag.Bool("no-audio", false, "skip audible playback (synthesis still runs)")
	noVideo       = flag.Bool("no-video", false, "disable video self-recording")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *uiPort != 0 {
		cfg.UIPort = *uiPort
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	logger := log.With("component", "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutdown requested")
		cancel()
	}()

	client := backend.New(cfg.BackendURL)

	questions, err := loadQuestions(ctx, client)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("interview prepared", "questions", len(questions))

	sessionID := uuid.NewString()
	monitor := web.NewServer(strconv.Itoa(cfg.UIPort), sessionID)
	if cfg.UIPort > 0 {
		monitor.StartAsync()
		defer monitor.Shutdown()
	}

	recorder := transcript.NewRecorder(monitor, log.L())

	var player speech.Player = speech.NewFFplayPlayer()
	if *noAudio {
		player = speech.NewMockPlayer()
	}
	speaker := speech.NewSpeaker(client, player)

	ch := channel.New(cfg.ChannelURL())

	newCapture := func() session.Capturer {
		var source audio.Source
		if *mockMic {
			source = audio.NewMockSource(cfg.SampleRate, log.L(), audio.WithSineWave(220, 0.2))
		} else {
			source = audio.NewFFmpegSource(cfg.SampleRate, log.L(), audio.WithDevice(*micDevice))
		}
		return capture.New(source, ch.SendBinary,
			capture.WithFrameDuration(cfg.FrameDuration),
			capture.WithStatusFunc(monitor.PublishMic),
			capture.WithEndedFunc(func() {
				ch.SendJSON(protocol.AudioEnded())
			}))
	}

	var video *record.VideoRecorder
	if !*noVideo && cfg.RecordDir != "" {
		video = record.New(cfg.RecordDir)
		if err := video.Start(ctx); err != nil {
			logger.Warn("self-recording unavailable", "error", err)
			video = nil
		}
	}

	orch := session.New(client, speaker, ch, newCapture, recorder, questions,
		session.WithStateFunc(func(s session.State) {
			monitor.PublishState(s.String())
		}),
		session.WithProgressFunc(monitor.PublishProgress),
		session.WithFinalFunc(func(lines []transcript.Line) {
			monitor.SetFinal(lines)
			fmt.Print(transcript.ExportText(lines))
		}),
	)

	runErr := orch.Run(ctx)

	if video != nil {
		video.Stop()
		logger.Info("recording saved", "path", video.Path())
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("interview ended abnormally", "error", runErr)
		os.Exit(1)
	}
	logger.Info("interview finished", "session", sessionID)
}

// loadQuestions resolves the question list from, in order of precedence,
// a backend preset, a questions file, or positional arguments.
func loadQuestions(ctx context.Context, client *backend.Client) ([]string, error) {
	if *preset != "" {
		questions, err := client.LoadPreset(ctx, *preset)
		if err != nil {
			return nil, fmt.Errorf("load preset %q: %w", *preset, err)
		}
		return questions, nil
	}

	if *questionsFile != "" {
		f, err := os.Open(*questionsFile)
		if err != nil {
			return nil, fmt.Errorf("open questions file: %w", err)
		}
		defer f.Close()

		var questions []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				questions = append(questions, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read questions file: %w", err)
		}
		if len(questions) == 0 {
			return nil, fmt.Errorf("questions file %q is empty", *questionsFile)
		}
		return questions, nil
	}

	if args := flag.Args(); len(args) > 0 {
		return args, nil
	}
	return nil, fmt.Errorf("no questions: pass them as arguments, or use -questions or -preset")
}
