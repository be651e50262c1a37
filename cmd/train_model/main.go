// train_model trains a downtime model offline from a CSV file and writes the
// artifact a running server reloads.
//
// Usage:
//
//	train_model train --data machine_downtime.csv --model models/downtime_model.json
//	train_model inspect --model models/downtime_model.json
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"downtime/logging"
	"downtime/ml"
	"downtime/pipeline"
)

const defaultModelPath = "models/downtime_model.json"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "train_model",
		Usage:     "Train and inspect machine downtime models",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"DOWNTIME_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			trainCommand(),
			inspectCommand(),
		},
	}
}

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Train a model from a CSV dataset and write the artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the CSV dataset",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   defaultModelPath,
				Usage:   "Artifact output path",
				EnvVars: []string{"DOWNTIME_ARTIFACT_PATH"},
			},
			&cli.IntFlag{
				Name:  "trees",
				Value: ml.DefaultForestConfig().Trees,
				Usage: "Number of trees in the forest",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Value: ml.DefaultForestConfig().MaxDepth,
				Usage: "Maximum tree depth",
			},
		},
		Action: func(c *cli.Context) error {
			logger := logging.NewWriter(c.App.ErrWriter, c.String("log-level"))
			defer logger.Sync()

			file, err := os.Open(c.String("data"))
			if err != nil {
				return fmt.Errorf("open dataset: %w", err)
			}
			defer file.Close()

			table, err := pipeline.ReadTable(file)
			if err != nil {
				return err
			}
			logger.Info("dataset loaded", zap.Int("rows", table.Len()), zap.Int("columns", len(table.Columns)))

			config := ml.DefaultForestConfig()
			config.Trees = c.Int("trees")
			config.MaxDepth = c.Int("max-depth")
			artifact, err := ml.TrainArtifact(table, config)
			if err != nil {
				return err
			}
			if err := artifact.Save(c.String("model")); err != nil {
				return fmt.Errorf("save artifact: %w", err)
			}
			logger.Info("model trained",
				zap.String("artifact_id", artifact.ID),
				zap.Float64("accuracy", artifact.Evaluation.Accuracy),
				zap.String("path", c.String("model")))

			return printEvaluation(c.App.Writer, artifact)
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Describe a trained artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   defaultModelPath,
				Usage:   "Artifact path",
				EnvVars: []string{"DOWNTIME_ARTIFACT_PATH"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the schema and evaluation as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			artifact, err := ml.LoadArtifact(c.String("model"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"id":         artifact.ID,
					"trained_at": artifact.TrainedAt,
					"rows":       artifact.Rows,
					"schema":     artifact.Schema(),
					"evaluation": artifact.Evaluation,
				})
			}
			return printEvaluation(c.App.Writer, artifact)
		},
	}
}

func printEvaluation(out io.Writer, artifact *ml.Artifact) error {
	eval := artifact.Evaluation
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "artifact\t%s\n", artifact.ID)
	fmt.Fprintf(w, "rows\t%d (test %d)\n", artifact.Rows, eval.TestRows)
	fmt.Fprintf(w, "machines\t%d\n", len(artifact.Encoder.Categories))
	fmt.Fprintf(w, "features\t%d\n", artifact.Schema().Width())
	fmt.Fprintf(w, "accuracy\t%.4f\n", eval.Accuracy)
	if len(eval.ConfusionMatrix) == 2 {
		fmt.Fprintf(w, "confusion\tTN=%d FP=%d FN=%d TP=%d\n",
			eval.ConfusionMatrix[0][0], eval.ConfusionMatrix[0][1],
			eval.ConfusionMatrix[1][0], eval.ConfusionMatrix[1][1])
	}
	return w.Flush()
}
