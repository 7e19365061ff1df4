package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mammo-rag/internal/apiclient"
	"mammo-rag/internal/tui"
)

func chatCMD(load configLoader) *cobra.Command {
	var apiURL string
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat against the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.Client.APIURL = apiURL
			}

			// console logging would corrupt the alternate screen
			previous := log.Logger
			log.Logger = zerolog.Nop()
			defer func() { log.Logger = previous }()

			conv := tui.NewConversation()
			model := tui.New(apiclient.New(&cfg.Client), conv)
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	chat.Flags().StringVar(&apiURL, "api", "", "API base URL (overrides client.api_url)")
	return chat
}
