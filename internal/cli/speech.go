package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/observability"
	"github.com/jansunwai/assistant/internal/service/speech"
)

var (
	speechTimeout time.Duration
	speakOut      string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Upload a recording to the speech-to-text endpoint",
	Long: `Upload a recording exactly like the widget's microphone button does and
print the transcript.

Examples:
  intakectl transcribe complaint.wav
  intakectl transcribe --token "$TOKEN" note.webm`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var speakCmd = &cobra.Command{
	Use:   "speak <text>",
	Short: "Synthesize text with the configured voice catalog",
	Long: `Pick a voice the way the widget does (Hindi text prefers a Hindi voice and
falls back to a slower English one) and save the synthesized audio.

Examples:
  intakectl speak "Your complaint has been registered"
  intakectl speak --out ./clips "आपकी शिकायत दर्ज हो गई है"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSpeak,
}

func init() {
	transcribeCmd.Flags().DurationVar(&speechTimeout, "timeout", 45*time.Second, "overall deadline")
	speakCmd.Flags().DurationVar(&speechTimeout, "timeout", 45*time.Second, "overall deadline")
	speakCmd.Flags().StringVarP(&speakOut, "out", "o", ".", "directory for synthesized audio")
}

func newSpeechService() (*speech.Service, error) {
	logger, err := observability.NewFileLogger(cfg.Log, logFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return speech.NewService(cfg.Speech.Model(), logger), nil
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	svc, err := newSpeechService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), speechTimeout)
	defer cancel()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "wav"
	}
	mimeType := mime.TypeByExtension("." + format)
	if mimeType == "" {
		mimeType = "audio/" + format
	}

	start := time.Now()
	text, err := svc.Transcribe(ctx, credentials(), speechmodel.Audio{Data: data, Format: format, MIMEType: mimeType})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text)
	fmt.Fprintf(cmd.ErrOrStderr(), "transcribed %d bytes in %s\n", len(data), time.Since(start).Round(time.Millisecond))
	return nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	svc, err := newSpeechService()
	if err != nil {
		return err
	}
	if !svc.SynthesisEnabled() {
		return speech.ErrSynthesisDisabled
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), speechTimeout)
	defer cancel()

	select {
	case <-svc.Catalog().Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	u := speech.BuildUtterance(text, svc.Catalog().Voices())
	voice := "platform default"
	if u.Voice != nil {
		voice = fmt.Sprintf("%s (%s)", u.Voice.Name, u.Voice.Lang)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "language %s, voice %s, rate %.1f\n", u.Lang, voice, u.Rate)

	speaker := svc.NewSpeaker(speech.FilePlayer{Dir: speakOut})
	if err := speaker.Speak(ctx, text); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", speakOut)
	return nil
}
