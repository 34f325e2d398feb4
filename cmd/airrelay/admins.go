package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/airrelay/internal/directory"
)

// adminsCommand manages the admin set directly on the configured store,
// for bootstrapping without the chat.
func adminsCommand() *cli.Command {
	return &cli.Command{
		Name:  "admins",
		Usage: "Inspect or change the bridge admins",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print every admin user id",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDirectory(ctx, cmd.String("config"), func(dir *directory.Directory) error {
						return listAdmins(ctx, dir, cmd.Root().Writer)
					})
				},
			},
			{
				Name:      "add",
				Usage:     "Grant admin rights to a user id",
				ArgsUsage: "<user_id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one user id")
					}
					userID, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
					if err != nil {
						return fmt.Errorf("invalid user id %q: %w", cmd.Args().First(), err)
					}
					return withDirectory(ctx, cmd.String("config"), func(dir *directory.Directory) error {
						return addAdmin(ctx, dir, userID, cmd.Root().Writer)
					})
				},
			},
		},
	}
}

// withDirectory opens the configured store without the cache and runs fn
// against it.
func withDirectory(ctx context.Context, configPath string, fn func(*directory.Directory) error) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	kv, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	dir := directory.New(kv)
	dir.SetLogger(log)
	return fn(dir)
}

func listAdmins(ctx context.Context, dir *directory.Directory, w io.Writer) error {
	ids, err := dir.ListAdmins(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "no admins configured")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func addAdmin(ctx context.Context, dir *directory.Directory, userID int64, w io.Writer) error {
	added, err := dir.AddAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintf(w, "user %d is now an admin\n", userID)
	} else {
		fmt.Fprintf(w, "user %d is already an admin\n", userID)
	}
	return nil
}
