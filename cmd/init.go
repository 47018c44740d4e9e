package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chai-cli/chai-cli/internal/config"
	"github.com/chai-cli/chai-cli/internal/store"
)

var defaultChaiYAML = `# username: your-name
memory_dir: ~/.chai/memory
command_prefix: "!"

convo_model: hermes-3-llama-3.2-3b
sys_model: hermes-3-llama-3.1-8b

provider:
  type: openai            # or anthropic
  api_key: ${CHAI_API_KEY}
  endpoints:              # probed in order, the first that answers is used
    - name: localhost
      base_url: http://localhost:1234/v1
    - name: velvet.tinysun.net
      base_url: http://velvet.tinysun.net:1234/v1

probe_timeout: 2          # seconds
timeout: 0                # request timeout in seconds, 0 = none
stream_idle_timeout: 0    # seconds without stream data, 0 = none
retries: 1

selfimprove:
  threshold: 80
  max_rounds: 0           # 0 = until the threshold is reached

debug: false
`

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize default config in ~/.chai/",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.ChaiDir()
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}

			chaiPath := filepath.Join(dir, "chai.yaml")
			if _, err := os.Stat(chaiPath); os.IsNotExist(err) {
				if err := os.WriteFile(chaiPath, []byte(defaultChaiYAML), 0644); err != nil {
					return err
				}
				fmt.Println("Created", chaiPath)
			} else {
				fmt.Println("Exists", chaiPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := store.New(cfg.MemoryDir).Init(); err != nil {
				return err
			}
			fmt.Println("Memory", cfg.MemoryDir)

			fmt.Println("✅ chai initialized at", dir)
			return nil
		},
	})
}
