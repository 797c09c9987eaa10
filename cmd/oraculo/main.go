package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type client struct {
	baseURL    string
	credential string
	httpClient *http.Client
}

type validateResp struct {
	IsValid        bool     `json:"is_valid"`
	Reasons        []string `json:"reasons"`
	IdempotencyKey string   `json:"idempotency_key"`
	Extracted      struct {
		ResponsibleEngineer *string  `json:"responsible_engineer"`
		Date                *string  `json:"date"`
		Percentage          *float64 `json:"construction_progress_percentage"`
	} `json:"extracted"`
	Oracle *struct {
		State  string `json:"state"`
		TxHash string `json:"transaction_hash"`
		Reason string `json:"failure_reason"`
		Result *struct {
			TransactionHash string `json:"transaction_hash"`
			BlockNumber     uint64 `json:"block_number"`
			GasUsed         uint64 `json:"gas_used"`
			Status          string `json:"status"`
		} `json:"result"`
	} `json:"oracle"`
}

type submissionResp struct {
	Key       string `json:"key"`
	State     string `json:"state"`
	TxHash    string `json:"txHash"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
	UpdatedAt string `json:"updatedAt"`
}

type escrowResp struct {
	TotalEscrowed         string `json:"total_escrowed"`
	TotalReleased         string `json:"total_released"`
	LastReleasedMilestone uint64 `json:"last_released_milestone"`
	TotalMilestones       uint64 `json:"total_milestones"`
	Developer             string `json:"developer"`
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL string     `yaml:"baseUrl"`
	APIKey  string     `yaml:"apiKey"`
	Token   string     `yaml:"token"`
	Auth    authConfig `yaml:"auth"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

type authConfig struct {
	Login loginConfig `yaml:"login"`
}

type loginConfig struct {
	URLTemplate  string            `yaml:"urlTemplate"`
	Method       string            `yaml:"method"`
	Headers      map[string]string `yaml:"headers"`
	BodyTemplate string            `yaml:"bodyTemplate"`
	ContentType  string            `yaml:"contentType"`
	TokenPath    string            `yaml:"tokenPath"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// authorize sets X-API-Key for opaque keys and a bearer header for JWTs.
func (c *client) authorize(req *http.Request) {
	if c.credential == "" {
		return
	}
	if strings.Count(c.credential, ".") == 2 {
		req.Header.Set("Authorization", "Bearer "+c.credential)
		return
	}
	req.Header.Set("X-API-Key", c.credential)
}

func (c *client) get(path string) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func (c *client) upload(path string, form map[string]string, fileField, filePath string, bar *progressbar.ProgressBar) (int, []byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return 0, nil, err
	}
	src := io.Reader(f)
	if bar != nil {
		src = io.TeeReader(f, bar)
	}
	if _, err := io.Copy(fw, src); err != nil {
		return 0, nil, err
	}
	if err := mw.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	baseURL := getenv("ORACULO_BASE_URL", "http://localhost:8080")
	credential := getenv("ORACULO_API_KEY", "")
	profileName := getenv("ORACULO_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "oraculo",
		Short: "oraculo CLI",
		Long:  "oraculo CLI for construction-progress validation and escrow queries.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for oraculo")
	root.PersistentFlags().StringVar(&credential, "api-key", credential, "API key or bearer JWT")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("ORACULO_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("api-key") {
			if v := strings.TrimSpace(os.Getenv("ORACULO_API_KEY")); v != "" {
				credential = v
			} else if prof.Token != "" {
				credential = prof.Token
			} else if prof.APIKey != "" {
				credential = prof.APIKey
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(validateCmd(&baseURL, &credential, ui))
	root.AddCommand(submissionCmd(&baseURL, &credential, ui))
	root.AddCommand(escrowCmd(&baseURL, &credential, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL  string
		apiKey   string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if apiKey == "" {
				apiKey = prof.APIKey
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if apiKey == "" {
					apiKey = prompt(reader, "API key (optional)", "")
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			if apiKey != "" {
				prof.APIKey = strings.TrimSpace(apiKey)
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for oraculo")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var apiKey string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an API key in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(apiKey) == "" {
				return errors.New("provide --api-key")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.APIKey = strings.TrimSpace(apiKey)
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&apiKey, "api-key", "", "API key")

	var (
		loginUser       string
		loginPassword   string
		loginURL        string
		loginMethod     string
		loginCT         string
		loginPayload    string
		loginTokenPath  string
		saveLoginConfig bool
		headerKVs       []string
		noPrompt        bool
	)
	login := &cobra.Command{
		Use:   "login",
		Short: "Fetch a bearer JWT from an identity provider and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := strings.TrimSpace(loginUser)
			password := strings.TrimSpace(loginPassword)
			if user == "" && !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				user = prompt(reader, "Username", "")
			}
			if password == "" && !noPrompt {
				p, err := promptSecret("Password")
				if err != nil {
					return err
				}
				password = p
			}
			if user == "" || password == "" {
				return errors.New("username and password are required")
			}

			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			loginCfg := prof.Auth.Login
			if strings.TrimSpace(loginURL) != "" {
				loginCfg.URLTemplate = loginURL
			}
			if loginCfg.URLTemplate == "" {
				return errors.New("no login URL configured (set --login-url or auth.login.urlTemplate)")
			}
			if strings.TrimSpace(loginMethod) != "" {
				loginCfg.Method = loginMethod
			}
			if strings.TrimSpace(loginCT) != "" {
				loginCfg.ContentType = loginCT
			}
			if strings.TrimSpace(loginTokenPath) != "" {
				loginCfg.TokenPath = loginTokenPath
			}
			if strings.TrimSpace(loginPayload) != "" {
				loginCfg.BodyTemplate = loginPayload
			}
			if len(headerKVs) > 0 {
				if loginCfg.Headers == nil {
					loginCfg.Headers = map[string]string{}
				}
				for _, kv := range headerKVs {
					k, v, ok := strings.Cut(kv, ":")
					if !ok {
						return fmt.Errorf("invalid header: %s (expected Key: Value)", kv)
					}
					loginCfg.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}

			token, err := identityLogin(loginCfg, user, password)
			if err != nil {
				return err
			}
			prof.Token = token

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			if saveLoginConfig {
				prof.Auth.Login = loginCfg
			}
			cfg.Profiles[active] = prof
			cfg.CurrentProfile = active
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Logged in. Token stored for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	login.Flags().StringVar(&loginUser, "user", "", "Username for login")
	login.Flags().StringVar(&loginPassword, "password", "", "Password for login")
	login.Flags().StringVar(&loginURL, "login-url", "", "Identity login URL (template allowed)")
	login.Flags().StringVar(&loginMethod, "method", "", "HTTP method (default POST)")
	login.Flags().StringVar(&loginCT, "content-type", "", "Content-Type override")
	login.Flags().StringVar(&loginPayload, "payload", "", "Login payload (template allowed)")
	login.Flags().StringVar(&loginTokenPath, "token-path", "", "JSON token path (default access_token)")
	login.Flags().StringArrayVar(&headerKVs, "header", nil, "Extra headers (Key: Value)")
	login.Flags().BoolVar(&saveLoginConfig, "save", true, "Save login config for this profile")
	login.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s Profile: %s\n", ui.title("oraculo"), active)
			fmt.Printf("%s Base URL: %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s API Key:  %s\n", ui.info("•"), maskToken(prof.APIKey))
			fmt.Printf("%s Token:    %s\n", ui.info("•"), maskToken(prof.Token))
			fmt.Printf("%s Login URL: %s\n", ui.info("•"), emptyOr(prof.Auth.Login.URLTemplate, "<unset>"))
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.APIKey = ""
			prof.Token = ""
			cfg.Profiles[active] = prof
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials cleared for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}

	auth.AddCommand(login, set, show, clear)
	return auth
}

func validateCmd(baseURL, credential *string, ui *ui) *cobra.Command {
	var (
		buildingID uint64
		milestone  uint8
	)
	cmd := &cobra.Command{
		Use:     "validate <document>",
		Short:   "Validate a progress report and confirm its milestone",
		Example: "oraculo validate laudo.pdf --building 42 --milestone 3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docPath := args[0]
			if buildingID == 0 {
				return errors.New("building is required")
			}
			if milestone == 0 {
				return errors.New("milestone is required")
			}
			if strings.TrimSpace(*credential) == "" {
				return errors.New("credential is required (run `oraculo auth set` or set ORACULO_API_KEY)")
			}

			info, err := os.Stat(docPath)
			if err != nil {
				return err
			}
			bar := progressbar.DefaultBytes(info.Size(), "Uploading "+filepath.Base(docPath))

			c := newClient(*baseURL, *credential)
			form := map[string]string{
				"building_id":      fmt.Sprintf("%d", buildingID),
				"milestone_number": fmt.Sprintf("%d", milestone),
			}
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Validating document..."
			spin.Start()
			status, resp, err := c.upload("/v1/oracle/validate", form, "document", docPath, bar)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}

			var out validateResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			printVerdict(ui, &out)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&buildingID, "building", 0, "Building identifier")
	cmd.Flags().Uint8Var(&milestone, "milestone", 0, "Milestone number (1-255)")
	return cmd
}

func printVerdict(ui *ui, out *validateResp) {
	if out.IsValid {
		fmt.Printf("%s Document valid\n", ui.ok("[OK]"))
	} else {
		fmt.Printf("%s Document rejected\n", ui.err("[INVALID]"))
		for _, r := range out.Reasons {
			fmt.Printf("  %s %s\n", ui.warn("•"), r)
		}
	}
	if out.Extracted.ResponsibleEngineer != nil {
		fmt.Printf("%s Engineer:   %s\n", ui.info("•"), *out.Extracted.ResponsibleEngineer)
	}
	if out.Extracted.Date != nil {
		fmt.Printf("%s Date:       %s\n", ui.info("•"), *out.Extracted.Date)
	}
	if out.Extracted.Percentage != nil {
		fmt.Printf("%s Progress:   %.1f%%\n", ui.info("•"), *out.Extracted.Percentage)
	}
	fmt.Printf("%s Key:        %s\n", ui.dim("•"), out.IdempotencyKey)
	if out.Oracle == nil {
		return
	}
	switch out.Oracle.State {
	case "CONFIRMED":
		fmt.Printf("%s Milestone confirmed on-chain\n", ui.ok("[CONFIRMED]"))
	case "FAILED":
		fmt.Printf("%s On-chain confirmation failed (%s)\n", ui.err("[FAILED]"), out.Oracle.Reason)
	default:
		fmt.Printf("%s Submission %s\n", ui.warn("[PENDING]"), out.Oracle.State)
	}
	if out.Oracle.TxHash != "" {
		fmt.Printf("%s Tx:         %s\n", ui.dim("•"), out.Oracle.TxHash)
	}
	if out.Oracle.Result != nil {
		fmt.Printf("%s Block:      %d (gas %d)\n", ui.dim("•"), out.Oracle.Result.BlockNumber, out.Oracle.Result.GasUsed)
	}
}

func submissionCmd(baseURL, credential *string, ui *ui) *cobra.Command {
	get := &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a submission by idempotency key",
		Example: "oraculo submission get b42:m3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(*credential) == "" {
				return errors.New("credential is required (run `oraculo auth set` or set ORACULO_API_KEY)")
			}
			c := newClient(*baseURL, *credential)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching submission..."
			spin.Start()
			status, resp, err := c.get("/v1/oracle/submissions/" + url.PathEscape(args[0]))
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out submissionResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			stateLabel := ui.warn(out.State)
			switch out.State {
			case "CONFIRMED":
				stateLabel = ui.ok(out.State)
			case "FAILED":
				stateLabel = ui.err(out.State)
			}
			fmt.Printf("%s: %s | attempts: %d", stateLabel, out.Key, out.Attempts)
			if out.TxHash != "" {
				fmt.Printf(" | tx: %s", out.TxHash)
			}
			if out.Reason != "" {
				fmt.Printf(" | reason: %s", out.Reason)
			}
			fmt.Println()
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "submission",
		Short: "Submission operations",
	}
	cmd.AddCommand(get)
	return cmd
}

func escrowCmd(baseURL, credential *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:     "escrow <buildingId>",
		Short:   "Inspect escrow state for a building",
		Example: "oraculo escrow 42",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(*credential) == "" {
				return errors.New("credential is required (run `oraculo auth set` or set ORACULO_API_KEY)")
			}
			c := newClient(*baseURL, *credential)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Reading escrow..."
			spin.Start()
			status, resp, err := c.get("/v1/oracle/escrow/" + url.PathEscape(args[0]))
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out escrowResp
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s: %s | %s: %s | %s: %d/%d | %s: %s\n",
				ui.info("ESCROWED"), out.TotalEscrowed,
				ui.ok("RELEASED"), out.TotalReleased,
				ui.warn("MILESTONES"), out.LastReleasedMilestone, out.TotalMilestones,
				ui.dim("DEVELOPER"), out.Developer,
			)
			return nil
		},
	}
}

func newClient(baseURL, credential string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func identityLogin(cfg loginConfig, user, password string) (string, error) {
	if cfg.Method == "" {
		cfg.Method = "POST"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = "access_token"
	}
	if cfg.BodyTemplate == "" {
		cfg.BodyTemplate = `{"username":"{{user}}","password":"{{password}}"}`
	}

	vars := map[string]string{
		"user":     user,
		"password": password,
	}
	loginURL, err := renderTemplate(cfg.URLTemplate, vars)
	if err != nil {
		return "", err
	}
	bodyStr, err := renderTemplate(cfg.BodyTemplate, vars)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(cfg.Method, loginURL, bytes.NewReader([]byte(bodyStr)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", cfg.ContentType)
	for k, v := range cfg.Headers {
		if strings.TrimSpace(k) != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed (%d): %s", resp.StatusCode, string(out))
	}
	raw, _ := io.ReadAll(resp.Body)
	return extractToken(raw, cfg.TokenPath)
}

func renderTemplate(tpl string, vars map[string]string) (string, error) {
	if strings.TrimSpace(tpl) == "" {
		return "", errors.New("payload template is empty")
	}
	funcs := template.FuncMap{}
	for k, v := range vars {
		val := v
		funcs[k] = func() string { return val }
	}
	t, err := template.New("tpl").Funcs(funcs).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractToken(body []byte, path string) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("invalid JSON response")
	}
	curr := v
	for _, p := range strings.Split(path, ".") {
		if p == "" {
			continue
		}
		m, ok := curr.(map[string]any)
		if !ok {
			return "", fmt.Errorf("token path not found")
		}
		curr, ok = m[p]
		if !ok {
			return "", fmt.Errorf("token path not found")
		}
	}
	if s, ok := curr.(string); ok && strings.TrimSpace(s) != "" {
		return s, nil
	}
	return "", fmt.Errorf("token not found at path")
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func helpTemplate(ui *ui) string {
	title := ui.title("oraculo")
	return fmt.Sprintf(`%s — CLI for oraculo

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  oraculo init
  oraculo auth set --api-key dev-key
  oraculo validate laudo.pdf --building 42 --milestone 3
  oraculo submission get b42:m3
  oraculo escrow 42

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("ORACULO_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".oraculo", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("ORACULO_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
