package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocircum/nordconnect/pkg/linter/procexec"
)

var (
	rootDir        = flag.String("dir", ".", "Root directory to scan")
	outputFormat   = flag.String("format", "text", "Output format (text, json)")
	exemptFile     = flag.String("exempt-file", "", "Path to a JSON file containing exemptions")
	strictMode     = flag.Bool("strict", true, "Enforce exemption expiry dates")
	silentMode     = flag.Bool("silent", false, "Only output if issues are found")
	configFile     = flag.String("config", "", "Path to configuration file")
	exitWithCode   = flag.Bool("exit-code", true, "Exit with non-zero code if issues found")
	printExemption = flag.Bool("print-exemption-template", false, "Print a template for exemption file and exit")
)

func main() {
	flag.Parse()

	if *printExemption {
		printExemptionTemplate()
		return
	}

	config := procexec.NewDefaultConfig()
	if *configFile != "" {
		if err := loadJSON(*configFile, config); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *exemptFile != "" {
		var exemptions []procexec.ExemptFile
		if err := loadJSON(*exemptFile, &exemptions); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading exemptions: %v\n", err)
		} else {
			config.ExemptFiles = exemptions
		}
	}
	config.StrictMode = *strictMode
	if !*silentMode {
		config.Log = os.Stdout
	}

	absRootDir, err := filepath.Abs(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving path: %v\n", err)
		os.Exit(1)
	}
	if !*silentMode {
		fmt.Printf("Scanning directory: %s\n", absRootDir)
	}

	issues, err := procexec.LintProject(absRootDir, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during linting: %v\n", err)
		os.Exit(1)
	}

	if len(issues) == 0 {
		if !*silentMode {
			fmt.Println("No issues found.")
		}
		return
	}
	if *outputFormat == "json" {
		outputJSON(issues)
	} else {
		outputText(absRootDir, issues)
	}
	if *exitWithCode {
		os.Exit(1)
	}
}

func outputText(root string, issues []procexec.Issue) {
	fmt.Printf("Found %d issues:\n\n", len(issues))
	for i, issue := range issues {
		relativePath, err := filepath.Rel(root, issue.File)
		if err != nil {
			relativePath = issue.File
		}
		fmt.Printf("%d) %s:%d:%d: %s\n", i+1, relativePath, issue.Line, issue.Column, issue.Message)
	}
	fmt.Println("\nOnly core/tunnel may start or signal processes, so that every openvpn child is supervised and reaped.")
}

func outputJSON(issues []procexec.Issue) {
	output := struct {
		Issues []procexec.Issue `json:"issues"`
		Total  int              `json:"total_issues"`
		Text   string           `json:"summary"`
	}{
		Issues: issues,
		Total:  len(issues),
		Text:   "Process API usage outside core/tunnel detected.",
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}

func loadJSON(filePath string, v interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func printExemptionTemplate() {
	exemptions := []procexec.ExemptFile{
		{Path: "path/to/file.go", Reason: "Reason for exemption"},
		{Path: "some/other/path/file.go", Reason: "Another reason for exemption", ExpiryDate: "2027-12-31"},
	}

	jsonData, err := json.MarshalIndent(exemptions, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating template: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}
