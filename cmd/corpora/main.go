// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/corpora"
	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/urfave/cli/v2"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func main() {
	app := &cli.App{
		Name:  "corpora",
		Usage: "Document collections with semantic retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./corpora-db",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a document into a collection",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: append(aiFlags(),
					&cli.StringFlag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Target collection name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   "Chunking strategy (semantic or fixed)",
						Value:   string(core.StrategySemantic),
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the ingestion job reaches a terminal state",
					},
				),
			},
			{
				Name:      "status",
				Usage:     "Show the status of an ingestion job",
				ArgsUsage: "JOB_ID",
				Action:    statusCommand,
				Flags:     aiFlags(),
			},
			{
				Name:   "jobs",
				Usage:  "List ingestion jobs, newest first",
				Action: jobsCommand,
				Flags: append(aiFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to show",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of jobs to skip",
					},
				),
			},
			{
				Name:      "query",
				Usage:     "Ask a question against a collection",
				ArgsUsage: "QUESTION",
				Action:    queryCommand,
				Flags: append(aiFlags(),
					&cli.StringFlag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection to query",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of chunks to retrieve (1-20)",
						Value:   core.DefaultRetrievalCount,
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "Print the retrieved chunks below the answer",
					},
				),
			},
			{
				Name:   "collections",
				Usage:  "List collections and their chunk counts",
				Action: collectionsCommand,
				Flags:  aiFlags(),
			},
			{
				Name:   "delete",
				Usage:  "Delete one collection, or all of them",
				Action: deleteCommand,
				Flags: append(aiFlags(),
					&cli.StringFlag{
						Name:    "collection",
						Aliases: []string{"c"},
						Usage:   "Collection to delete",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Delete every collection",
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// aiFlags returns the flags shared by every command that opens the database.
func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ai-host",
			Usage: "OpenAI-compatible service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "nomic-embed-text",
		},
		&cli.StringFlag{
			Name:  "generator-model",
			Usage: "Answer generation model name",
			Value: "qwen2.5:3b",
		},
	}
}

// openDatabase opens the document store using the command's flags.
func openDatabase(c *cli.Context) (*corpora.Database, error) {
	cfg := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGeneratorModel(c.String("generator-model")),
	)
	db, err := corpora.NewDatabase(c.String("db"), corpora.WithAIConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one file argument is required")
	}
	path := c.Args().First()

	document, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	jobID, err := pipeline.Submit(c.Context, document,
		filepath.Base(path), c.String("collection"), c.String("strategy"))
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", bold("Job:"), jobID)

	if !c.Bool("wait") {
		// The pipeline runs in this process; without --wait the job would
		// be interrupted when we exit. Warn rather than silently drop it.
		fmt.Println(yellow("warning: exiting now interrupts the job; pass --wait to let it finish"))
		return nil
	}

	for {
		job, err := db.JobRepository().GetJob(c.Context, jobID)
		if err != nil {
			return err
		}
		fmt.Printf("\r%-60s", fmt.Sprintf("%s %.0f%% %s", statusLabel(job.Status), job.Progress, job.Message))
		if job.Status.Terminal() {
			fmt.Println()
			printJob(job)
			if job.Status == core.JobFailed {
				return fmt.Errorf("ingestion failed: %s", job.ErrorDetail)
			}
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one job ID argument is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := db.JobRepository().GetJob(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func jobsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := db.JobRepository().ListJobs(c.Context, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}

	for _, job := range jobs {
		fmt.Printf("%s  %s  %-11s %3.0f%%  %s  %s\n",
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			job.ID,
			statusLabel(job.Status),
			job.Progress,
			cyan(job.CollectionName),
			job.SourceFilename)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one question argument is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	router, err := db.NewRouter()
	if err != nil {
		return err
	}

	result, err := router.Answer(c.Context, c.String("collection"), c.Args().First(), c.Int("k"))
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", bold("Answer:"), result.Answer)

	if c.Bool("show-sources") {
		fmt.Println()
		fmt.Println(bold("Sources:"))
		for i, sc := range result.Chunks {
			text := sc.Chunk.Text
			if len(text) > 200 {
				text = text[:200] + "..."
			}
			fmt.Printf("%2d. [%.4f] %s (chunk %d)\n    %s\n",
				i+1, sc.Score, cyan(sc.Chunk.Source), sc.Chunk.Index, text)
		}
	}
	return nil
}

func collectionsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	infos, err := db.CollectionRepository().ListCollections(c.Context)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no collections")
		return nil
	}

	for _, info := range infos {
		fmt.Printf("%-40s %8d chunks\n", cyan(info.Name), info.ChunkCount)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	name := c.String("collection")
	all := c.Bool("all")
	if !all && name == "" {
		return fmt.Errorf("pass either --collection or --all")
	}
	if all && name != "" {
		return fmt.Errorf("--collection and --all are mutually exclusive")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if all {
		if err := db.CollectionRepository().DeleteAll(c.Context); err != nil {
			return err
		}
		fmt.Println("deleted all collections")
		return nil
	}

	if err := db.CollectionRepository().DeleteCollection(c.Context, name); err != nil {
		return err
	}
	fmt.Printf("deleted collection %s\n", cyan(name))
	return nil
}

func printJob(job *core.IngestionJob) {
	fmt.Printf("%s      %s\n", bold("ID:"), job.ID)
	fmt.Printf("%s  %s\n", bold("Status:"), statusLabel(job.Status))
	fmt.Printf("%s %.0f%%\n", bold("Progress:"), job.Progress)
	fmt.Printf("%s %s\n", bold("Message:"), job.Message)
	fmt.Printf("%s %s -> %s\n", bold("Source:"), job.SourceFilename, cyan(job.CollectionName))
	fmt.Printf("%s %s\n", bold("Strategy:"), job.Strategy)
	if job.Status == core.JobCompleted {
		fmt.Printf("%s %d\n", bold("Chunks:"), job.ChunkCount)
	}
	if job.ErrorDetail != "" {
		fmt.Printf("%s %s\n", bold("Error:"), red(job.ErrorDetail))
	}
	fmt.Printf("%s %s\n", bold("Created:"), job.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("%s %s\n", bold("Updated:"), job.UpdatedAt.Local().Format(time.RFC3339))
}

func statusLabel(status core.JobStatus) string {
	switch status {
	case core.JobCompleted:
		return green(string(status))
	case core.JobFailed:
		return red(string(status))
	case core.JobProcessing:
		return yellow(string(status))
	default:
		return string(status)
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
