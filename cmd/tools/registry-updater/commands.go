package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"passport-tracker/pkg/registry"
)

func addCmd() *cobra.Command {
	a := registry.Activity{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new activity to the registry",
		Example: `  registry-updater add --id verify-stage --display-name "Verify Stage" \
    --category application --task-type verify-stage`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(registryPath)
			if errors.Is(err, os.ErrNotExist) {
				reg = registry.New()
			} else if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}

			a.InputSchema = map[string]interface{}{}
			a.OutputSchema = map[string]interface{}{}
			a.ErrorCodes = []string{}
			a.Workflows = []string{}
			if a.Tags == nil {
				a.Tags = []string{}
			}
			if err := reg.Add(a); err != nil {
				return err
			}
			if err := reg.Save(registryPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added activity: %s\n", a.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.ID, "id", "", "activity ID")
	f.StringVar(&a.DisplayName, "display-name", "", "display name")
	f.StringVar(&a.Description, "description", "", "description")
	f.StringVar(&a.Category, "category", "", "category (application, data-access)")
	f.StringVar(&a.TaskType, "task-type", "", "Zeebe task type")
	f.StringVar(&a.Version, "version", "1.0.0", "version")
	f.StringVar(&a.ImplementationStatus, "status", registry.StatusPlanned, "implementation status (planned, in-progress, completed, verified)")
	f.StringVar(&a.Timeout, "timeout", "10s", "job timeout")
	f.IntVar(&a.Retries, "retries", 0, "job retries")
	f.StringSliceVar(&a.Tags, "tag", nil, "tag, repeatable")
	for _, name := range []string{"id", "display-name", "category", "task-type"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func updateCmd() *cobra.Command {
	var id, field, value string
	cmd := &cobra.Command{
		Use:     "update",
		Short:   "Update one field of an existing activity",
		Example: "  registry-updater update --id verify-stage --field status --value completed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			a, ok := reg.Find(id)
			if !ok {
				return fmt.Errorf("activity with ID %s not found", id)
			}
			if err := setField(a, field, value); err != nil {
				return err
			}
			reg.Touch()
			if err := reg.Save(registryPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated activity %s, field %s to %s\n", id, field, value)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "activity ID or task type")
	cmd.Flags().StringVar(&field, "field", "", "field to update (status, version, displayName, description, category, taskType, timeout, retries)")
	cmd.Flags().StringVar(&value, "value", "", "new value")
	for _, name := range []string{"id", "field", "value"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func setField(a *registry.Activity, field, value string) error {
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "taskType":
		a.TaskType = value
	case "timeout":
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := reg.Validate(); err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d activities.\n", len(reg.Activities))
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK TYPE\tCATEGORY\tSTATUS\tTIMEOUT\tRETRIES")
			for _, a := range reg.Activities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.TaskType, a.Category, a.ImplementationStatus, a.Timeout, a.Retries)
			}
			return w.Flush()
		},
	}
}

func checkVarsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "check-vars <task-type>",
		Short:   "Check job variables against a task type's input schema",
		Example: "  registry-updater check-vars verify-stage --file vars.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			a, ok := reg.Find(args[0])
			if !ok {
				return fmt.Errorf("task type %s not registered", args[0])
			}

			var vars []byte
			if file == "" || file == "-" {
				vars, err = io.ReadAll(cmd.InOrStdin())
			} else {
				vars, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read variables: %w", err)
			}

			if err := a.ValidateVariables(vars); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Variables valid for %s.\n", a.TaskType)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "JSON variables file, - for stdin")
	return cmd
}
