package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"blobship/internal/logger"
	"blobship/internal/shipper"
)

// maxLineSize bounds a single input line
const maxLineSize = 4 * 1024 * 1024

func shipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ship [files...]",
		Short: "Ship every line of the given files (or stdin) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			s, err := shipper.New(cfg)
			if err != nil {
				return err
			}
			s.Start()

			var readErr error
			if len(args) == 0 {
				readErr = shipLines(s, cmd.InOrStdin(), "stdin")
			}
			for _, path := range args {
				if readErr = shipFile(s, path); readErr != nil {
					break
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ShutdownTimeout)
			defer cancel()
			closeErr := s.Close(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(s.Stats()); err != nil {
				return err
			}

			if readErr != nil {
				return readErr
			}
			return closeErr
		},
	}
}

func shipFile(s *shipper.Shipper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return shipLines(s, f, path)
}

// shipLines offers every non-empty line of r
func shipLines(s *shipper.Shipper, r io.Reader, name string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lines, rejected := 0, 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++
		// The scanner reuses its buffer
		if !s.Offer(append([]byte(nil), line...)) {
			rejected++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	log := logger.WithComponent("ship")
	log.Info().
		Str("source", name).
		Int("lines", lines).
		Int("rejected", rejected).
		Msg("input shipped")
	return nil
}
