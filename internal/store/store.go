package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chai-cli/chai-cli/internal/provider"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrExists      = errors.New("already exists")
	ErrInvalidName = errors.New("invalid character name")
)

const (
	charactersDir = "characters"
	savedDir      = "savedconvos"
	summaryFile   = "characterlist.txt"
	usernameFile  = "username.txt"
	promptExt     = ".txt"
	logSuffix     = "_saved.txt"
)

// Store is the on-disk layout under one memory directory.
type Store struct {
	Dir string
}

func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Init creates the directory layout.
func (s *Store) Init() error {
	for _, d := range []string{s.Dir, filepath.Join(s.Dir, charactersDir), filepath.Join(s.Dir, savedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func ValidName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) PromptPath(name string) string {
	return filepath.Join(s.Dir, charactersDir, name+promptExt)
}

func (s *Store) LogPath(name string) string {
	return filepath.Join(s.Dir, savedDir, name+logSuffix)
}

func (s *Store) SummaryPath() string {
	return filepath.Join(s.Dir, summaryFile)
}

// --- character prompt files ---

func (s *Store) ReadPrompt(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.PromptPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("character %s: %w", name, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}

// WritePrompt overwrites the prompt file of name.
func (s *Store) WritePrompt(name, text string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	return os.WriteFile(s.PromptPath(name), []byte(text), 0644)
}

func (s *Store) PromptExists(name string) bool {
	if ValidName(name) != nil {
		return false
	}
	_, err := os.Stat(s.PromptPath(name))
	return err == nil
}

// CreatePrompt creates an empty prompt file; created is false when it exists.
func (s *Store) CreatePrompt(name string) (created bool, err error) {
	if err := ValidName(name); err != nil {
		return false, err
	}
	f, err := os.OpenFile(s.PromptPath(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, f.Close()
}

// DuplicatePrompt copies the prompt file of src to a new file dst.
func (s *Store) DuplicatePrompt(src, dst string) error {
	if err := ValidName(dst); err != nil {
		return err
	}
	text, err := s.ReadPrompt(src)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.PromptPath(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("character %s: %w", dst, ErrExists)
		}
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) RemovePrompt(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	if err := os.Remove(s.PromptPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("character %s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}

type CharacterInfo struct {
	Name      string
	Size      int64
	UpdatedAt time.Time
}

// ListCharacters returns all characters sorted by name.
func (s *Store) ListCharacters() ([]CharacterInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, charactersDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []CharacterInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != promptExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, CharacterInfo{
			Name:      strings.TrimSuffix(e.Name(), promptExt),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- character summary cache ---

func (s *Store) ReadSummaries() (string, error) {
	data, err := os.ReadFile(s.SummaryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) WriteSummaries(text string) error {
	return os.WriteFile(s.SummaryPath(), []byte(text), 0644)
}

// --- username ---

func (s *Store) Username() string {
	data, err := os.ReadFile(filepath.Join(s.Dir, usernameFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *Store) SetUsername(name string) error {
	return os.WriteFile(filepath.Join(s.Dir, usernameFile), []byte(name), 0644)
}

// --- saved conversation logs ---

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	roleNames = map[string]string{
		provider.RoleSystem:    "System",
		provider.RoleUser:      "User",
		provider.RoleAssistant: "Assistant",
	}
)

func unescape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// SaveLog writes msgs as one "Role: content" line per message and returns
// the file path.
func (s *Store) SaveLog(name string, msgs []provider.Message) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(s.Dir, savedDir), 0755); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range msgs {
		role, ok := roleNames[m.Role]
		if !ok {
			role = m.Role
		}
		sb.WriteString(role + ": " + escaper.Replace(m.Content) + "\n")
	}
	p := s.LogPath(name)
	if err := os.WriteFile(p, []byte(sb.String()), 0644); err != nil {
		return "", err
	}
	return p, nil
}

// LoadLog reads a saved log back, skipping System lines and lines without
// a known role tag.
func (s *Store) LoadLog(name string) ([]provider.Message, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.LogPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("saved conversation %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	var msgs []provider.Message
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		tag, content, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch strings.ToLower(tag) {
		case provider.RoleUser:
			msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: unescape(content)})
		case provider.RoleAssistant:
			msgs = append(msgs, provider.Message{Role: provider.RoleAssistant, Content: unescape(content)})
		}
	}
	return msgs, sc.Err()
}

type LogInfo struct {
	Name      string
	Size      int64
	UpdatedAt time.Time
}

// ListLogs returns saved logs, most recent first.
func (s *Store) ListLogs() ([]LogInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, savedDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []LogInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, LogInfo{
			Name:      strings.TrimSuffix(e.Name(), logSuffix),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) RemoveLog(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	if err := os.Remove(s.LogPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("saved conversation %s: %w", name, ErrNotFound)
		}
		return err
	}
	return nil
}
