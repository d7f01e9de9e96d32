package tunnel

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is an openvpn command line under construction.
type Command struct {
	Binary string
	Args   []string
}

// Has reports whether --flag is present.
func (c *Command) Has(flag string) bool {
	return c.index(flag) >= 0
}

// Value returns the first argument following --flag.
func (c *Command) Value(flag string) (string, bool) {
	i := c.index(flag)
	if i < 0 || i+1 >= len(c.Args) || strings.HasPrefix(c.Args[i+1], "--") {
		return "", false
	}
	return c.Args[i+1], true
}

// Add appends --flag followed by its values.
func (c *Command) Add(flag string, values ...string) {
	c.Args = append(c.Args, "--"+flag)
	c.Args = append(c.Args, values...)
}

// Remove drops --flag and the values following it.
func (c *Command) Remove(flag string) {
	i := c.index(flag)
	if i < 0 {
		return
	}
	end := i + 1
	for end < len(c.Args) && !strings.HasPrefix(c.Args[end], "--") {
		end++
	}
	c.Args = append(c.Args[:i], c.Args[end:]...)
}

func (c *Command) index(flag string) int {
	want := "--" + strings.TrimPrefix(flag, "--")
	for i, a := range c.Args {
		if a == want {
			return i
		}
	}
	return -1
}

func (c *Command) String() string {
	return shellquote.Join(append([]string{c.Binary}, c.Args...)...)
}

// BuiltIn selects the packaged credentials file or script instead of a path.
const BuiltIn = "built-in"

// builtinScripts maps openvpn script hooks to the scripts shipped in Settings.ScriptsDir.
var builtinScripts = map[string]string{
	"up":       "openvpn_up_down.bash",
	"down":     "openvpn_up_down.bash",
	"ipchange": "openvpn_ipchange.bash",
}

// Script is one entry of the scripts option: openvpn runs Path for the hook
// Name with the environment file Creates, relative to the runtime directory.
type Script struct {
	Name    string
	Path    string
	Creates string
}

// ParseScripts decodes the scripts option, a list of {name, path, creates} maps.
func ParseScripts(value interface{}) ([]Script, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("openvpn option \"scripts\" must be a list, got %T", value)
	}
	scripts := make([]Script, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("scripts[%d] must be a map with name, path and creates, got %T", i, item)
		}
		var sc Script
		fields := []struct {
			key string
			dst *string
		}{{"name", &sc.Name}, {"path", &sc.Path}, {"creates", &sc.Creates}}
		for _, f := range fields {
			v, ok := m[f.key].(string)
			if !ok || strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("scripts[%d].%s must be a non-empty string", i, f.key)
			}
			*f.dst = strings.TrimSpace(v)
		}
		scripts = append(scripts, sc)
	}
	return scripts, nil
}

// addScripts adds one --<hook> '<script>' <envfile> argument per script.
// Hooks the command line already sets are left alone.
func (c *Command) addScripts(value interface{}, s Settings) error {
	scripts, err := ParseScripts(value)
	if err != nil {
		return err
	}
	added := false
	for _, sc := range scripts {
		if c.Has(sc.Name) {
			continue
		}
		path := sc.Path
		if path == BuiltIn {
			name, ok := builtinScripts[sc.Name]
			if !ok {
				return fmt.Errorf("no built-in script for %q", sc.Name)
			}
			if s.ScriptsDir == "" {
				return fmt.Errorf("built-in script for %q needs openvpn.scripts_dir", sc.Name)
			}
			path = filepath.Join(s.ScriptsDir, name)
		}
		env := filepath.Join(s.RuntimeDir, sc.Creates)
		c.Add(sc.Name, "'"+path+"' "+env)
		added = true
	}
	if added && !c.Has("script-security") {
		c.Add("script-security", "2")
	}
	return nil
}

// addConfigured adds one entry of the openvpn.options config map. Booleans
// toggle a bare flag, lists become several values, anything else one value.
// The keys scripts and auth-user-pass get their own handling.
func (c *Command) addConfigured(key string, value interface{}, s Settings) error {
	switch key {
	case "scripts":
		return c.addScripts(value, s)
	case "auth-user-pass":
		if value == BuiltIn {
			if s.CredentialsFile == "" {
				return fmt.Errorf("auth-user-pass %s needs openvpn.credentials_file", BuiltIn)
			}
			value = s.CredentialsFile
		}
	}

	switch v := value.(type) {
	case nil:
		c.Add(key)
	case bool:
		if v {
			c.Add(key)
		}
	case string:
		switch v {
		case "true", "True":
			c.Add(key)
		case "false", "False":
		default:
			c.Add(key, v)
		}
	case int:
		c.Add(key, strconv.Itoa(v))
	case int64:
		c.Add(key, strconv.FormatInt(v, 10))
	case float64:
		c.Add(key, strconv.FormatFloat(v, 'f', -1, 64))
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case string, bool, int, int64, float64:
				values = append(values, fmt.Sprint(item))
			default:
				return fmt.Errorf("openvpn option %q has an unsupported list item of type %T", key, item)
			}
		}
		c.Add(key, values...)
	case []string:
		c.Add(key, v...)
	default:
		return fmt.Errorf("openvpn option %q has unsupported type %T", key, value)
	}
	return nil
}

// OvpnPath is the location of the NordVPN configuration for fqdn, e.g.
// <dir>/ovpn_udp/us1234.nordvpn.com.udp.ovpn.
func OvpnPath(configDir, fqdn, protocol string) string {
	return filepath.Join(configDir, "ovpn_"+protocol, fmt.Sprintf("%s.%s.ovpn", fqdn, protocol))
}

// BuildCommand assembles the openvpn command line for req: the user options
// first, then --daemon, then the configured options the user did not set,
// then --config and --writepid. The ovpn file is copied to a temporary file in
// runtimeDir without the directives the command line already sets; its path is
// returned so the caller can remove it.
func BuildCommand(req Request, s Settings) (*Command, string, error) {
	cmd := &Command{Binary: s.Binary}

	if req.Options != "" {
		words, err := shellquote.Split(req.Options)
		if err != nil {
			return nil, "", fmt.Errorf("invalid openvpn options %q: %w", req.Options, err)
		}
		cmd.Args = append(cmd.Args, words...)
	}
	if req.Daemon && !cmd.Has("daemon") {
		cmd.Add("daemon")
	}

	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if cmd.Has(k) {
			continue
		}
		if err := cmd.addConfigured(k, s.Options[k], s); err != nil {
			return nil, "", err
		}
	}

	source, ok := cmd.Value("config")
	if ok {
		cmd.Remove("config")
	} else {
		if req.Host == "" {
			return nil, "", fmt.Errorf("no host to build the openvpn configuration path")
		}
		source = OvpnPath(s.ConfigDir, req.Host, req.Protocol)
	}

	if !cmd.Has("writepid") {
		cmd.Add("writepid", PidPath(s.RuntimeDir))
	}

	tmp, err := rewriteConfig(source, s.RuntimeDir, cmd)
	if err != nil {
		return nil, "", err
	}
	cmd.Add("config", tmp)
	return cmd, tmp, nil
}

// rewriteConfig copies the ovpn file at source into dir, dropping every
// directive cmd already sets.
func rewriteConfig(source, dir string, cmd *Command) (string, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("failed to read openvpn configuration: %w", err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) > 0 && cmd.Has(fields[0]) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to parse openvpn configuration: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "openvpn-*.ovpn")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(out.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), 0o640); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
