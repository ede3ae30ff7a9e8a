package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

var (
	genRequestPath string
	genTitle       string
	genGoal        string
	genContext     string
	genConstraints string
	genPriority    string
	genAudience    string
	genDocTypes    []string
	genExport      bool
	genJSONOut     bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a decision document set without the server",
	Long: `Generate runs the full pipeline once: provider call, stabilization,
rendering, and the quality gate. The bundle is persisted under the
configured storage root. With --export the documents are also written
as individual markdown artifacts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadGenerateRequest()
		if err != nil {
			return err
		}
		req.Normalize()
		if err := req.Validate(); err != nil {
			return fmt.Errorf("invalid request: %w", err)
		}

		gen, _, err := buildGenerationService(cmd.Context())
		if err != nil {
			return err
		}

		run := gen.Generate
		if genExport {
			run = gen.Export
		}
		res, err := run(cmd.Context(), req)
		if err != nil {
			for _, d := range failureDetails(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "violation: %s\n", d)
			}
			return err
		}

		logger.Info("generation complete",
			zap.String("bundle_id", res.BundleID),
			zap.String("cache_status", string(res.CacheStatus)),
			zap.Int64("provider_ms", res.Timings.ProviderMS))

		if genJSONOut {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		for _, doc := range res.Docs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", doc.Markdown)
		}
		for _, key := range res.ExportKeys {
			fmt.Fprintf(cmd.OutOrStdout(), "exported: %s\n", key)
		}
		return nil
	},
}

// loadGenerateRequest builds the request from --request (JSON or YAML file)
// with individual flags overriding file values.
func loadGenerateRequest() (*schema.GenerateRequest, error) {
	req := &schema.GenerateRequest{}
	if genRequestPath != "" {
		data, err := os.ReadFile(genRequestPath)
		if err != nil {
			return nil, fmt.Errorf("read request file: %w", err)
		}
		if err := yaml.Unmarshal(data, req); err != nil {
			return nil, fmt.Errorf("parse request file: %w", err)
		}
	}
	if genTitle != "" {
		req.Title = genTitle
	}
	if genGoal != "" {
		req.Goal = genGoal
	}
	if genContext != "" {
		req.Context = genContext
	}
	if genConstraints != "" {
		req.Constraints = genConstraints
	}
	if genPriority != "" {
		req.Priority = genPriority
	}
	if genAudience != "" {
		req.Audience = genAudience
	}
	if len(genDocTypes) > 0 {
		req.DocTypes = req.DocTypes[:0]
		for _, s := range genDocTypes {
			dt, err := schema.ParseDocType(s)
			if err != nil {
				return nil, err
			}
			req.DocTypes = append(req.DocTypes, dt)
		}
	}
	return req, nil
}

// failureDetails surfaces gate violations on the CLI the same way the API
// error envelope does.
func failureDetails(err error) []string {
	if f, ok := generation.AsFailure(err); ok {
		return f.Details
	}
	return nil
}

func init() {
	generateCmd.Flags().StringVarP(&genRequestPath, "request", "r", "", "path to a JSON or YAML request file")
	generateCmd.Flags().StringVar(&genTitle, "title", "", "request title")
	generateCmd.Flags().StringVar(&genGoal, "goal", "", "what the system should achieve")
	generateCmd.Flags().StringVar(&genContext, "context", "", "surrounding context for the decision")
	generateCmd.Flags().StringVar(&genConstraints, "constraints", "", "hard constraints to honor")
	generateCmd.Flags().StringVar(&genPriority, "priority", "", "priority ordering, e.g. \"security > cost\"")
	generateCmd.Flags().StringVar(&genAudience, "audience", "", "target audience")
	generateCmd.Flags().StringSliceVar(&genDocTypes, "doc-types", nil, "doc types to generate (adr,onepager,eval_plan,ops_checklist)")
	generateCmd.Flags().BoolVar(&genExport, "export", false, "also export each document as a markdown artifact")
	generateCmd.Flags().BoolVar(&genJSONOut, "json", false, "print the full result as JSON")
}
