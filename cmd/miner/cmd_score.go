package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"checkerminer/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scoreUnreviewed  bool
	predictionsLimit int
)

var scoreCmd = &cobra.Command{
	Use:   "score [product-id...]",
	Short: "Score products once and print the results",
	Long: `Runs a single forward pass over the given product ids, or over every
product awaiting review with --unreviewed.

Example:
  miner score 66f1c2e0a8 66f1c2e0b9
  miner score --unreviewed`,
	RunE: runScore,
}

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "List recorded predictions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runPredictions,
}

func runScore(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !scoreUnreviewed {
		return errors.New("pass product ids or --unreviewed")
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ids := args
	if scoreUnreviewed {
		products, err := a.checker.FetchUnreviewed(ctx)
		if err != nil {
			return fmt.Errorf("failed to list unreviewed products: %w", err)
		}
		ids = append([]string(nil), args...)
		for _, p := range products {
			ids = append(ids, p.ID)
		}
		logger.Info("scoring unreviewed products", zap.Int("count", len(ids)))
	}

	preds := a.miner.Forward(ctx, ids)
	return writeScores(cmd.OutOrStdout(), ids, preds)
}

func runPredictions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()

	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	preds, err := s.List(ctx, predictionsLimit)
	if err != nil {
		return err
	}
	return writePredictions(cmd.OutOrStdout(), preds)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func formatScore(p *float64) string {
	if p == nil {
		return "null"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

// writeScores prints one row per queried id plus a summary line.
func writeScores(w io.Writer, ids []string, preds []*float64) error {
	t := newTable("PRODUCT", "SCORE")
	scored := 0
	for i, id := range ids {
		var p *float64
		if i < len(preds) {
			p = preds[i]
		}
		if p != nil {
			scored++
		}
		t.Row(id, formatScore(p))
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "scored %d/%d products\n", scored, len(ids))
	return err
}

// writePredictions prints stored predictions.
func writePredictions(w io.Writer, preds []store.Prediction) error {
	if len(preds) == 0 {
		_, err := fmt.Fprintln(w, "no predictions recorded")
		return err
	}
	t := newTable("PRODUCT", "SCORE", "SOURCE", "MODEL", "RECORDED")
	for _, p := range preds {
		score := p.Score
		t.Row(p.ProductID, formatScore(&score), p.Source, p.Model, p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
