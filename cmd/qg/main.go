package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualgate/internal/app"
	"qualgate/internal/config"
	"qualgate/internal/db"
	"qualgate/internal/domain"
	"qualgate/internal/engine"
	"qualgate/internal/queue"
	"qualgate/internal/repo"
	"qualgate/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qg",
	Short: "Qualgate CLI",
	Long: `Qualgate gates material and supplier approval behind tiered compliance checks
and aggregates outstanding compliance work into one prioritized queue.
- Workspace: the .qualgate directory holding the database; qualgate.yml seeds the check catalog.
- Checks: critical failures block approval, important failures block full approval,
  recommended failures are advisory.
- Overrides: a failing check can be waived with an approved override request;
  approvals carry a follow-up date that lands in the work queue.
- Work queue: expiring documents, missing documents, conditional approvals,
  stale drafts, supplier reviews and override work, ranked by priority score.
- Event log: diary of changes, view with 'qg log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QUALGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(supplierCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(defsCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			a, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default qualgate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	return cfg
}

func materialCmd() *cobra.Command {
	mat := &cobra.Command{Use: "material", Short: "Manage materials"}
	mat.AddCommand(materialCreateCmd())
	mat.AddCommand(materialListCmd())
	mat.AddCommand(materialShowCmd())
	mat.AddCommand(materialUpdateCmd())
	mat.AddCommand(materialLinkCmd())
	mat.AddCommand(materialUnlinkCmd())
	mat.AddCommand(materialChecksCmd())
	mat.AddCommand(materialApproveCmd())
	mat.AddCommand(materialConditionalCmd())
	mat.AddCommand(materialRejectCmd())
	mat.AddCommand(materialCoALimitCmd())
	mat.AddCommand(materialUnitCmd())
	return mat
}

func materialCreateCmd() *cobra.Command {
	var name, code, category string
	var coaRequired bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create material",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMaterial(ctx, engine.MaterialCreateOptions{
					Name:        name,
					Code:        code,
					Category:    category,
					CoARequired: coaRequired,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "material name")
	cmd.Flags().StringVar(&code, "code", "", "material code")
	cmd.Flags().StringVar(&category, "category", "", "material category")
	cmd.Flags().BoolVar(&coaRequired, "coa-required", false, "certificate of analysis required")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func materialListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List materials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var statuses []string
				if status != "" {
					statuses = []string{status}
				}
				materials, err := e.Repo.ListMaterials(ctx, statuses...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(materials)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Code", "Category", "Status"})
				for _, m := range materials {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Code, m.Category, m.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func materialShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <material-id>",
		Short: "Show a material with suppliers and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMaterial(ctx, args[0])
				if err != nil {
					return err
				}
				links, err := e.Repo.ListSupplierLinks(ctx, m.ID)
				if err != nil {
					return err
				}
				docs, err := e.Repo.ListDocuments(ctx, "material", m.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"material":  m,
					"suppliers": links,
					"documents": docs,
				})
			})
		},
	}
	return cmd
}

func materialUpdateCmd() *cobra.Command {
	var name, code, category, glAccount, haccpStep, haccpHazard, country string
	var tempMin, tempMax, fraudScore float64
	var coaRequired bool
	cmd := &cobra.Command{
		Use:   "update <material-id>",
		Short: "Update material fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMaterial(ctx, args[0])
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("name") {
					m.Name = name
				}
				if flags.Changed("code") {
					m.Code = code
				}
				if flags.Changed("category") {
					m.Category = category
				}
				if flags.Changed("coa-required") {
					m.CoARequired = coaRequired
				}
				if flags.Changed("gl-account") {
					m.GLAccountID = &glAccount
				}
				if flags.Changed("haccp-step") {
					m.HACCPStep = &haccpStep
				}
				if flags.Changed("haccp-hazard") {
					m.HACCPHazard = &haccpHazard
				}
				if flags.Changed("storage-temp-min") {
					m.StorageTempMin = &tempMin
				}
				if flags.Changed("storage-temp-max") {
					m.StorageTempMax = &tempMax
				}
				if flags.Changed("fraud-score") {
					m.FraudScore = &fraudScore
				}
				if flags.Changed("country-of-origin") {
					m.CountryOfOrigin = &country
				}
				m, err = e.UpdateMaterial(ctx, m, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "material name")
	cmd.Flags().StringVar(&code, "code", "", "material code")
	cmd.Flags().StringVar(&category, "category", "", "material category")
	cmd.Flags().BoolVar(&coaRequired, "coa-required", false, "certificate of analysis required")
	cmd.Flags().StringVar(&glAccount, "gl-account", "", "general ledger account id")
	cmd.Flags().StringVar(&haccpStep, "haccp-step", "", "HACCP process step")
	cmd.Flags().StringVar(&haccpHazard, "haccp-hazard", "", "HACCP hazard analysis")
	cmd.Flags().Float64Var(&tempMin, "storage-temp-min", 0, "storage temperature minimum")
	cmd.Flags().Float64Var(&tempMax, "storage-temp-max", 0, "storage temperature maximum")
	cmd.Flags().Float64Var(&fraudScore, "fraud-score", 0, "fraud vulnerability score")
	cmd.Flags().StringVar(&country, "country-of-origin", "", "country of origin")
	return cmd
}

func materialLinkCmd() *cobra.Command {
	var manufacturer bool
	cmd := &cobra.Command{
		Use:   "link <material-id> <supplier-id>",
		Short: "Link a supplier to a material",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetMaterial(ctx, args[0]); err != nil {
					return err
				}
				if _, err := e.Repo.GetSupplier(ctx, args[1]); err != nil {
					return err
				}
				if err := e.Repo.LinkSupplier(ctx, args[0], args[1], manufacturer); err != nil {
					return err
				}
				links, err := e.Repo.ListSupplierLinks(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(links)
			})
		},
	}
	cmd.Flags().BoolVar(&manufacturer, "manufacturer", false, "supplier is the manufacturer")
	return cmd
}

func materialUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <material-id> <supplier-id>",
		Short: "Unlink a supplier from a material",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.UnlinkSupplier(ctx, args[0], args[1])
			})
		},
	}
}

func materialChecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks <material-id>",
		Short: "Run compliance checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, summary, err := e.EvaluateMaterial(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"results": results, "summary": summary})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Check", "Tier", "Passed", "Message"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.Definition.Key, r.Definition.Tier, r.Passed, r.Message})
				}
				tw.Render()
				fmt.Printf("blocked=%v conditional=%v full=%v (%d/%d failed)\n",
					summary.IsBlocked, summary.CanConditionalApprove, summary.CanFullApprove,
					summary.FailedChecks, summary.TotalChecks)
				return nil
			})
		},
	}
	return cmd
}

func materialApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <material-id>",
		Short: "Fully approve a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ApproveMaterial(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func materialConditionalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conditional-approve <material-id>",
		Short: "Conditionally approve a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ConditionalApproveMaterial(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func materialRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <material-id>",
		Short: "Reject a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RejectMaterial(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func materialCoALimitCmd() *cobra.Command {
	var parameter, unit string
	var minValue, maxValue float64
	cmd := &cobra.Command{
		Use:   "coa-limit <material-id>",
		Short: "Set a certificate of analysis limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l := domain.CoALimit{
					ID:         uuid.New().String(),
					MaterialID: args[0],
					Parameter:  parameter,
					Unit:       unit,
				}
				if cmd.Flags().Changed("min") {
					l.MinValue = &minValue
				}
				if cmd.Flags().Changed("max") {
					l.MaxValue = &maxValue
				}
				if err := e.Repo.UpsertCoALimit(ctx, l); err != nil {
					return err
				}
				limits, err := e.Repo.ListCoALimits(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(limits)
			})
		},
	}
	cmd.Flags().StringVar(&parameter, "parameter", "", "analysis parameter")
	cmd.Flags().Float64Var(&minValue, "min", 0, "minimum value")
	cmd.Flags().Float64Var(&maxValue, "max", 0, "maximum value")
	cmd.Flags().StringVar(&unit, "unit", "", "measurement unit")
	_ = cmd.MarkFlagRequired("parameter")
	return cmd
}

func materialUnitCmd() *cobra.Command {
	var unit string
	var factor float64
	var isDefault bool
	cmd := &cobra.Command{
		Use:   "unit <material-id>",
		Short: "Set a purchase unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u := domain.PurchaseUnit{
					ID:               uuid.New().String(),
					MaterialID:       args[0],
					Unit:             unit,
					ConversionFactor: factor,
					IsDefault:        isDefault,
				}
				if err := e.Repo.UpsertPurchaseUnit(ctx, u); err != nil {
					return err
				}
				units, err := e.Repo.ListPurchaseUnits(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(units)
			})
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "unit name")
	cmd.Flags().Float64Var(&factor, "factor", 1, "conversion factor to base unit")
	cmd.Flags().BoolVar(&isDefault, "default", false, "mark as default purchase unit")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func supplierCmd() *cobra.Command {
	sup := &cobra.Command{Use: "supplier", Short: "Manage suppliers"}
	sup.AddCommand(supplierCreateCmd())
	sup.AddCommand(supplierListCmd())
	sup.AddCommand(supplierStatusCmd())
	return sup
}

func supplierCreateCmd() *cobra.Command {
	var name, code, nextReview string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create supplier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSupplier(ctx, engine.SupplierCreateOptions{
					Name:           name,
					Code:           code,
					NextReviewDate: nextReview,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "supplier name")
	cmd.Flags().StringVar(&code, "code", "", "supplier code")
	cmd.Flags().StringVar(&nextReview, "next-review", "", "next review date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func supplierListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var statuses []string
				if status != "" {
					statuses = []string{status}
				}
				suppliers, err := e.Repo.ListSuppliers(ctx, statuses...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(suppliers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Code", "Status", "Next Review"})
				for _, s := range suppliers {
					review := ""
					if s.NextReviewDate != nil {
						review = *s.NextReviewDate
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.Code, s.Status, review})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func supplierStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <supplier-id> <status>",
		Short: "Set supplier status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSupplierStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func docCmd() *cobra.Command {
	doc := &cobra.Command{Use: "doc", Short: "Manage documents and requirements"}
	doc.AddCommand(docAddCmd())
	doc.AddCommand(docListCmd())
	doc.AddCommand(docArchiveCmd())
	doc.AddCommand(docRequireCmd())
	return doc
}

func docAddCmd() *cobra.Command {
	var entityType, name, docType, requirementID, expiry string
	cmd := &cobra.Command{
		Use:   "add <entity-id>",
		Short: "Attach a document to a material or supplier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d := domain.Document{
					EntityType: entityType,
					EntityID:   args[0],
					Name:       name,
					DocType:    docType,
				}
				if requirementID != "" {
					d.RequirementID = &requirementID
				}
				if expiry != "" {
					d.ExpiryDate = &expiry
				}
				d, err := e.AddDocument(ctx, d, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "material", "material or supplier")
	cmd.Flags().StringVar(&name, "name", "", "document name")
	cmd.Flags().StringVar(&docType, "type", "", "document type")
	cmd.Flags().StringVar(&requirementID, "requirement", "", "requirement id this document satisfies")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func docListCmd() *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "list <entity-id>",
		Short: "List documents for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				docs, err := e.Repo.ListDocuments(ctx, entityType, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Expiry", "Archived"})
				for _, d := range docs {
					expiry := ""
					if d.ExpiryDate != nil {
						expiry = *d.ExpiryDate
					}
					tw.AppendRow(table.Row{d.ID, d.Name, d.DocType, expiry, d.Archived})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "material", "material or supplier")
	return cmd
}

func docArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <document-id>",
		Short: "Archive a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.ArchiveDocument(ctx, args[0])
			})
		},
	}
}

func docRequireCmd() *cobra.Command {
	var entityType, name, docType string
	var categories []string
	cmd := &cobra.Command{
		Use:   "require",
		Short: "Define a required document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req := domain.DocumentRequirement{
					ID:                   uuid.New().String(),
					EntityType:           entityType,
					Name:                 name,
					DocType:              docType,
					ApplicableCategories: categories,
					IsActive:             true,
				}
				if err := e.Repo.UpsertRequirement(ctx, req); err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "material", "material or supplier")
	cmd.Flags().StringVar(&name, "name", "", "requirement name")
	cmd.Flags().StringVar(&docType, "type", "", "expected document type")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "applicable categories (empty = all)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func overrideCmd() *cobra.Command {
	ov := &cobra.Command{Use: "override", Short: "Check override requests"}
	ov.AddCommand(overrideRequestCmd())
	ov.AddCommand(overrideListCmd())
	ov.AddCommand(overrideDecideCmd())
	ov.AddCommand(overrideResolveCmd())
	return ov
}

func overrideRequestCmd() *cobra.Command {
	var checkKey, entityType, entityID, reason string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request an override for a failing check",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.RequestOverride(ctx, engine.OverrideRequestOptions{
					CheckKey:   checkKey,
					EntityType: entityType,
					EntityID:   entityID,
					Reason:     reason,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&checkKey, "check", "", "check key")
	cmd.Flags().StringVar(&entityType, "entity-type", "material", "material or supplier")
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id")
	cmd.Flags().StringVar(&reason, "reason", "", "business justification")
	_ = cmd.MarkFlagRequired("check")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func overrideListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List override requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				overrides, err := e.Repo.ListOverrides(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(overrides)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Check", "Entity", "Status", "Follow-up"})
				for _, o := range overrides {
					followUp := ""
					if o.FollowUpDate != nil {
						followUp = *o.FollowUpDate
					}
					tw.AppendRow(table.Row{o.ID, o.CheckKey, o.EntityType + "/" + o.EntityID, o.Status, followUp})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func overrideDecideCmd() *cobra.Command {
	var approve bool
	var followUp string
	cmd := &cobra.Command{
		Use:   "decide <override-id>",
		Short: "Approve or reject an override request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.DecideOverride(ctx, args[0], approve, followUp, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request (omit to reject)")
	cmd.Flags().StringVar(&followUp, "follow-up", "", "follow-up date (YYYY-MM-DD)")
	return cmd
}

func overrideResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <override-id>",
		Short: "Resolve an approved override's follow-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.ResolveOverrideFollowUp(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Compliance work queue"}
	q.AddCommand(queueListCmd())
	q.AddCommand(queueSummaryCmd())
	return q
}

func queueListCmd() *cobra.Command {
	var types, priorities, categories []string
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prioritized work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.BuildWorkQueue(ctx, queue.Filters{
					Types:      types,
					Priorities: priorities,
					Categories: categories,
					Search:     search,
				})
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Score", "Priority", "Type", "Entity", "Issue", "Due"})
				for _, it := range items {
					due := it.DueDate
					if it.IsOverdue {
						due += " (overdue)"
					}
					tw.AppendRow(table.Row{it.PriorityScore, it.Priority, it.Type, it.EntityName, it.IssueDescription, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "filter by item type")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "filter by priority level")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "filter by entity category")
	cmd.Flags().StringVar(&search, "search", "", "substring search over name, code and description")
	return cmd
}

func queueSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Work queue aggregate counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.WorkQueueSummary(ctx))
			})
		},
	}
}

func defsCmd() *cobra.Command {
	defs := &cobra.Command{Use: "defs", Short: "Check definitions"}
	defs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List check definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCheckDefinitions(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Tier", "Entity", "Categories", "Active"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.Key, d.Tier, d.EntityType, strings.Join(d.ApplicableCategories, ","), d.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	})
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportCatalog(ctx, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("imported %d checks, %d settings\n", len(cfg.Catalog.Checks), len(cfg.Settings))
				return nil
			})
		},
	}
	importCmd.Flags().String("file", "", "catalog yaml file")
	defs.AddCommand(importCmd)
	defs.AddCommand(defsSetActiveCmd("enable", true))
	defs.AddCommand(defsSetActiveCmd("disable", false))
	return defs
}

func defsSetActiveCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <check-key>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.SetCheckDefinitionActive(ctx, args[0], active)
			})
		},
	}
}

func settingsCmd() *cobra.Command {
	set := &cobra.Command{Use: "settings", Short: "Engine settings"}
	set.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSettings(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	set.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.SetSetting(ctx, args[0], args[1])
			})
		},
	})
	return set
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "number of events")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("QUALGATE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("QUALGATE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Qualgate API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := uuid.New().String() + uuid.New().String()
				k := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				// Secret is only shown once.
				return printJSONOrTable(map[string]string{
					"id":       k.ID,
					"actor_id": k.ActorID,
					"name":     k.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
