package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mbocsi/airlink/generator"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/services"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

type encodeFlags struct {
	File      string
	Format    string
	Prefix    string
	MaxMulti  int
	MaxSingle int
	QR        bool
	Animate   bool
	Loops     int
}

func newEncodeCmd(a *app) *cobra.Command {
	var f encodeFlags

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a JSON message batch into QR frames and a deep link",
		Long: `Encode reads a JSON array of messages and prints the frames that carry it.

Examples:
  airlink encode -f batch.json
  airlink encode -f batch.json --format legacy --prefix airgap-vault
  airlink encode -f batch.json --animate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd.InOrStdin(), f.File)
			if err != nil {
				return err
			}

			codec := services.NewCodecService(proto.DefaultRegistry(), services.FrameDefaults{
				MaxMultiFrameSize:  a.cfg.Frames.MaxMultiFrameSize,
				MaxSingleFrameSize: a.cfg.Frames.MaxSingleFrameSize,
				Prefix:             a.cfg.Link.Scheme,
			})
			req := services.EncodeRequest{
				Format:             f.Format,
				Messages:           batch,
				MaxMultiFrameSize:  f.MaxMulti,
				MaxSingleFrameSize: f.MaxSingle,
				Prefix:             f.Prefix,
			}
			result, err := codec.Encode(req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case f.Animate:
				gen, err := generator.New(result.Format, proto.DefaultRegistry())
				if err != nil {
					return err
				}
				maxMulti, maxSingle := f.MaxMulti, f.MaxSingle
				if maxMulti <= 0 {
					maxMulti = a.cfg.Frames.MaxMultiFrameSize
				}
				if maxSingle <= 0 {
					maxSingle = a.cfg.Frames.MaxSingleFrameSize
				}
				if err := gen.Create(batch, maxMulti, maxSingle); err != nil {
					return err
				}
				return animate(cmd.Context(), out, gen, f.Loops, a.cfg.Frames.Interval)
			case f.QR:
				for i, frame := range result.Frames {
					fmt.Fprintf(out, "Frame %d/%d\n", i+1, len(result.Frames))
					qrterminal.GenerateHalfBlock(frame, qrterminal.L, out)
				}
				return nil
			default:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
		},
	}

	cmd.Flags().StringVarP(&f.File, "file", "f", "-", "JSON message batch, - for stdin")
	cmd.Flags().StringVar(&f.Format, "format", "ur", "output format: ur|bcur|legacy|xpub|descriptor|metamask")
	cmd.Flags().StringVar(&f.Prefix, "prefix", "", "deep link scheme for the single form (defaults to link.scheme)")
	cmd.Flags().IntVar(&f.MaxMulti, "max-multi", 0, "fragment size for animated frames")
	cmd.Flags().IntVar(&f.MaxSingle, "max-single", 0, "largest payload shown as one frame")
	cmd.Flags().BoolVar(&f.QR, "qr", false, "draw every frame as a terminal QR code")
	cmd.Flags().BoolVar(&f.Animate, "animate", false, "cycle the frames in the terminal until interrupted")
	cmd.Flags().IntVar(&f.Loops, "loops", 0, "stop the animation after this many cycles")
	return cmd
}

func readBatch(stdin io.Reader, path string) (proto.Batch, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	var batch proto.Batch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return nil, fmt.Errorf("read message batch: %w", err)
	}
	return batch, nil
}

// animate redraws the generator's next part every interval. It runs until
// ctx ends, or for loops rounds of PartCount frames when loops is positive.
// Fountain generators keep producing fresh mixed parts past the first round.
func animate(ctx context.Context, w io.Writer, gen generator.Generator, loops int, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	count := gen.PartCount()
	if count == 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for shown := 0; loops <= 0 || shown < loops*count; shown++ {
		fmt.Fprint(w, "\033[H\033[2J")
		qrterminal.GenerateHalfBlock(gen.NextPart(), qrterminal.L, w)
		fmt.Fprintf(w, "%s  frame %d (%d per round)\n", gen.Name(), shown+1, count)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
