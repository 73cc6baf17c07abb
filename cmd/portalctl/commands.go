package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"merkaz/internal/core"
	"merkaz/internal/server/auth"
	"merkaz/internal/server/config"
	"merkaz/internal/server/database"

	"github.com/spf13/cobra"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		identity string
		userID   string
		admin    bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			token, err := auth.NewIssuer(cfg.JWTSecret, ttl).Issue(identity, userID, admin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Email the token is issued to")
	cmd.Flags().StringVar(&userID, "user-id", "", "Directory id of the user")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin access")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.TokenTTL, "Token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func newUploadCmd(cfg *config.Config) *cobra.Command {
	var (
		server  string
		token   string
		subpath string
	)
	cmd := &cobra.Command{
		Use:   "upload PATH...",
		Short: "Submit files and folders for review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := core.ParseArgs(args)
			if err != nil {
				return err
			}
			tree, err := core.BuildFiletree(parsed)
			if err != nil {
				return fmt.Errorf("building file tree: %w", err)
			}
			payload := core.NewPayload(tree.Files(), subpath)
			if len(payload.Files()) == 0 {
				return errors.New("nothing to upload: no regular files found")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "uploading %d files (%d bytes)\n", len(payload.Files()), tree.TotalSize())

			body, contentType := payload.Reader()
			defer body.Close()

			url := strings.TrimRight(server, "/") + "/upload"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("upload request failed: %w", err)
			}
			defer resp.Body.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("server responded %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:"+cfg.Port, "Portal base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (see 'portalctl token')")
	cmd.Flags().StringVar(&subpath, "subpath", "", "Suggested destination in the shared area")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newUsersCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the Postgres user directory",
	}
	cmd.AddCommand(newUsersAddCmd(cfg), newUsersListCmd(cfg))
	return cmd
}

func openRepository(cmd *cobra.Command, cfg *config.Config) (*database.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	db, err := database.New(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(cmd.Context()); err != nil {
		db.Close()
		return nil, nil, err
	}
	return database.NewRepository(db), db.Close, nil
}

func newUsersAddCmd(cfg *config.Config) *cobra.Command {
	var (
		identity string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != database.RoleUser && role != database.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			repo, closeDB, err := openRepository(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			u := &database.User{Identity: identity, Role: role}
			if err := repo.Create(cmd.Context(), u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %s, role %s)\n", u.Identity, u.ID, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Email of the new user")
	cmd.Flags().StringVar(&role, "role", database.RoleUser, "Role: user or admin")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func newUsersListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepository(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			users, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Identity, u.Role)
			}
			return nil
		},
	}
}
