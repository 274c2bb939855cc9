/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/timeline/internal/channel"
	"github.com/friendsincode/timeline/internal/timeline"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Evaluate channel states from a YAML file",
	Long:  "Evaluate a YAML channel list at a given instant without a database. Useful for checking schedules before importing them.",
	RunE:  runStates,
}

var (
	statesFile        string
	statesAt          string
	statesMinInterval int
	statesTimezone    string
	statesJSON        bool
)

func init() {
	rootCmd.AddCommand(statesCmd)

	statesCmd.Flags().StringVar(&statesFile, "file", "", "Path to the channel YAML file (required)")
	statesCmd.Flags().StringVar(&statesAt, "at", "", "Evaluation instant in RFC3339 (default: now)")
	statesCmd.Flags().IntVar(&statesMinInterval, "min-interval", timeline.DefaultMinIntervalMinutes, "Minimum interval in minutes")
	statesCmd.Flags().StringVar(&statesTimezone, "timezone", "UTC", "Location for channels without a timezone")
	statesCmd.Flags().BoolVar(&statesJSON, "json", false, "Print JSON instead of a table")
	_ = statesCmd.MarkFlagRequired("file")
}

func runStates(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(statesTimezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", statesTimezone, err)
	}

	now := time.Now()
	if statesAt != "" {
		now, err = time.Parse(time.RFC3339, statesAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}

	f, err := os.Open(statesFile)
	if err != nil {
		return fmt.Errorf("open channel file: %w", err)
	}
	defer f.Close()

	inputs, err := channel.ImportYAML(f)
	if err != nil {
		return err
	}

	channels := channel.EngineChannelsFromInputs(inputs)
	engine := timeline.New(timeline.WithLocation(loc))
	states := engine.ComputeStates(channels, statesMinInterval, now)

	out := cmd.OutOrStdout()
	if statesJSON {
		type row struct {
			ChannelID string                    `json:"channel_id"`
			Info      timeline.ChannelStateInfo `json:"info"`
			Display   timeline.Display          `json:"display"`
		}
		rows := make([]row, 0, len(channels))
		for _, ch := range channels {
			rows = append(rows, row{ChannelID: ch.ID, Info: states[ch.ID], Display: timeline.Describe(states[ch.ID], now, loc)})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATE\tREMAINING\tSTARTS IN\tENDED AGO\tNEXT SLOT\tPREVIOUS SLOT")
	for _, ch := range channels {
		d := timeline.Describe(states[ch.ID], now, loc)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ch.ID, d.State, dash(d.Remaining), dash(d.StartsIn), dash(d.EndedAgo), dash(d.NextSlot), dash(d.PreviousSlot))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
