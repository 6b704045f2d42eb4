package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/pdp"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pdp-config - Configuration tool for the policy decision point")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pdp-config convert <input> <output>                    - Convert between formats")
	fmt.Println("  pdp-config validate <file>                             - Validate configuration")
	fmt.Println("  pdp-config stats <file>                                - Show configuration statistics")
	fmt.Println("  pdp-config check <file> <principal> <resource> <action> - Evaluate one request against the config")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: pdp-config convert <input> <output>")
		os.Exit(1)
	}
	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := pdp.NewConfigLoader().LoadFile(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pdp-config validate <file>")
		os.Exit(1)
	}
	cfg, err := pdp.NewConfigLoader().LoadFile(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
		fmt.Printf("Configuration has %d problem(s)\n", len(errs))
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Version:     %d\n", cfg.Version)
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
	fmt.Printf("  ACLs:        %d\n", len(cfg.ACLs))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pdp-config stats <file>")
		os.Exit(1)
	}
	filename := os.Args[2]
	cfg, err := pdp.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat, err := os.Stat(filename); err == nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
	fmt.Printf("  ACLs:        %d\n", len(cfg.ACLs))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allowCount := 0
		denyCount := 0
		conditions := 0
		for _, p := range cfg.Policies {
			if p.Effect == pdp.EffectAllow {
				allowCount++
			} else {
				denyCount++
			}
			conditions += len(p.Conditions) + len(p.When)
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow policies: %d\n", allowCount)
		fmt.Printf("  Deny policies:  %d\n", denyCount)
		fmt.Printf("  Conditions:     %d\n", conditions)
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
		}
		fmt.Println("Role Details:")
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Println()
	}

	if len(cfg.Hierarchy) > 0 {
		fmt.Println("Role Hierarchy:")
		for child, parent := range cfg.Hierarchy {
			fmt.Printf("  %s -> %s\n", child, parent)
		}
		fmt.Println()
	}

	if cfg.Engine.DefaultEffect != "" {
		fmt.Printf("Default effect: %s\n", cfg.Engine.DefaultEffect)
	}
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: pdp-config check <file> <principal> <resource> <action>")
		os.Exit(1)
	}
	cfg, err := pdp.NewConfigLoader().LoadFile(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	p, err := pdp.NewFromConfig(cfg)
	if err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	principal := &pdp.Principal{ID: os.Args[3], Kind: pdp.KindUser}
	exp := p.Explain(context.Background(), principal, os.Args[4], os.Args[5], nil)
	verdict := "DENY"
	if exp.Decision.Allowed {
		verdict = "ALLOW"
	}
	fmt.Printf("%s: %s\n", verdict, exp.Decision.Reason)
	for _, v := range exp.Votes {
		result := "deny"
		if v.Err != "" {
			result = "error: " + v.Err
		} else if v.Decision != nil && v.Decision.Allowed {
			result = "allow"
		}
		fmt.Printf("  %-10s %s\n", v.Evaluator, result)
	}
	if !exp.Decision.Allowed {
		os.Exit(2)
	}
}

func saveConfig(cfg *pdp.Config, filename string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filename))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
