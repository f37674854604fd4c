package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexZinkM/solwallet/internal/api"
	"github.com/AlexZinkM/solwallet/internal/common"
	"github.com/AlexZinkM/solwallet/internal/config"
	"github.com/AlexZinkM/solwallet/internal/crypto"
	"github.com/AlexZinkM/solwallet/internal/handler"
	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// withRuntime wires the wallet for action and tears it down afterwards.
func withRuntime(unlock bool, action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c.Context, c)
		if err != nil {
			return err
		}
		defer rt.close()

		if unlock {
			if err := rt.unlock(); err != nil {
				return err
			}
		}
		return action(c, rt)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the wallet HTTP API",
		Action: withRuntime(false, func(c *cli.Context, rt *runtime) error {
			password, err := config.PromptForPassword("Enter wallet password: ")
			if err != nil {
				return err
			}

			if _, err := crypto.ReadWalletAddress(rt.cfg.SolanaFilePath); err == nil {
				if _, err := rt.session.LoadKeystore(rt.cfg.SolanaFilePath, password); err != nil {
					clear(password)
					return fmt.Errorf("failed to open keystore: %w", err)
				}
				if err := rt.fundSimulated(); err != nil {
					clear(password)
					return err
				}
			} else {
				rt.logger.Warn("no keystore yet, POST /wallet/generate to create one", "path", rt.cfg.SolanaFilePath)
			}

			walletHandler, err := handler.NewSolanaHandler(rt.session, rt.cfg.SolanaFilePath, password, rt.logger)
			if err != nil {
				clear(password)
				return err
			}
			defer walletHandler.Close()

			server := &http.Server{
				Addr:              ":" + rt.cfg.Port,
				Handler:           api.SetupRouter(walletHandler, rt.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				rt.logger.Info("starting server", "addr", server.Addr)
				serverErrors <- server.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)
			case sig := <-shutdown:
				rt.logger.Info("shutdown signal received", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("failed to shutdown server gracefully: %w", err)
			}
			rt.logger.Info("server shutdown complete")
			return nil
		}),
	}
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a new key and save it to the keystore",
		Action: withRuntime(false, func(c *cli.Context, rt *runtime) error {
			kp, err := rt.session.Generate()
			if err != nil {
				return err
			}
			if err := saveNewKeystore(rt); err != nil {
				return err
			}
			return output(c, model.GenerateResponse{
				Success: true,
				Message: "Wallet generated successfully",
				Address: kp.Address.String(),
			}, func() {
				fmt.Printf("Generated %s\n", kp.Address)
				fmt.Printf("  Keystore: %s\n", rt.cfg.SolanaFilePath)
			})
		}),
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a secret key into the keystore",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "keypair",
				Usage: "Solana CLI keypair file (JSON byte array)",
			},
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "Read a base58 or JSON array secret from a hidden prompt",
			},
		},
		Action: withRuntime(false, func(c *cli.Context, rt *runtime) error {
			var (
				secret []byte
				err    error
			)
			switch {
			case c.String("keypair") != "":
				secret, err = crypto.ReadSolanaKeypairFile(c.String("keypair"))
			case c.Bool("stdin"):
				var raw []byte
				raw, err = config.PromptForPassword("Secret key: ")
				if err == nil {
					secret, err = crypto.ParseSecret(string(raw))
					clear(raw)
				}
			default:
				return errors.New("one of --keypair or --stdin is required")
			}
			if err != nil {
				return err
			}
			defer clear(secret)

			kp, err := rt.session.Import(secret)
			if err != nil {
				return err
			}
			if err := saveNewKeystore(rt); err != nil {
				return err
			}
			return output(c, model.AddressResponse{Address: kp.Address.String()}, func() {
				fmt.Printf("Imported %s\n", kp.Address)
			})
		}),
	}
}

func saveNewKeystore(rt *runtime) error {
	password, err := config.PromptForPassword("New wallet password: ")
	if err != nil {
		return err
	}
	defer clear(password)
	confirm, err := config.PromptForPassword("Repeat password: ")
	if err != nil {
		return err
	}
	defer clear(confirm)
	if string(password) != string(confirm) {
		return errors.New("passwords do not match")
	}
	return rt.session.SaveKeystore(rt.cfg.SolanaFilePath, password)
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Print the keystore address (no password needed)",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			address, err := crypto.ReadWalletAddress(cfg.SolanaFilePath)
			if err != nil {
				return err
			}
			return output(c, model.AddressResponse{Address: address}, func() {
				fmt.Println(address)
			})
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the balance of the active key",
		Action: withRuntime(true, func(c *cli.Context, rt *runtime) error {
			account, err := rt.session.Balance(c.Context)
			if err != nil {
				return err
			}
			resp := model.BalanceResponse{
				Address:  account.Address.String(),
				Lamports: account.Lamports,
				SOL:      common.LamportsToSOL(account.Lamports),
				Slot:     account.Slot,
			}
			return output(c, resp, func() {
				fmt.Printf("%s SOL\n", resp.SOL)
				fmt.Printf("  Address:  %s\n", resp.Address)
				fmt.Printf("  Lamports: %d (slot %d)\n", resp.Lamports, resp.Slot)
			})
		}),
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send SOL and wait for the outcome",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Amount in SOL, e.g. 0.25",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Optional memo",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for a terminal state",
				Value: 90 * time.Second,
			},
		},
		Action: withRuntime(true, func(c *cli.Context, rt *runtime) error {
			lamports, err := common.SOLToLamports(c.String("amount"))
			if err != nil {
				return err
			}
			if lamports > 1<<63-1 {
				return errors.New("amount too large")
			}

			record, err := rt.session.Send(c.Context, c.String("to"), int64(lamports), c.String("memo"), c.Duration("timeout"))
			if record == nil {
				return err
			}
			if outErr := printRecord(c, record); outErr != nil {
				return outErr
			}
			return err
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a stored submission (needs DATABASE_URL)",
		ArgsUsage: "<tx-id>",
		Action: withRuntime(false, func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return errors.New("exactly one transaction id is required")
			}
			id, err := solana.SignatureFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid transaction id: %w", err)
			}
			record, err := rt.session.Submission(c.Context, id)
			if err != nil {
				return err
			}
			return printRecord(c, record)
		}),
	}
}

func rekeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "rekey",
		Usage: "Change the keystore password",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			oldPassword, err := config.PromptForPassword("Current password: ")
			if err != nil {
				return err
			}
			defer clear(oldPassword)
			newPassword, err := config.PromptForPassword("New password: ")
			if err != nil {
				return err
			}
			defer clear(newPassword)

			if err := (crypto.Keystore{}).Rekey(cfg.SolanaFilePath, oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Printf("Keystore %s re-encrypted\n", cfg.SolanaFilePath)
			return nil
		},
	}
}

func printRecord(c *cli.Context, r *model.SubmissionRecord) error {
	resp := model.SubmissionResponse{
		TxID:        r.ID.String(),
		RequestID:   r.RequestID,
		From:        r.Sender.String(),
		To:          r.Recipient.String(),
		Amount:      common.LamportsToSOL(r.Lamports),
		State:       string(r.State),
		Reason:      r.Reason,
		RetryCount:  r.RetryCount,
		SubmittedAt: r.SubmittedAt,
		ExpiresAt:   r.ExpiresAt,
	}
	return output(c, resp, func() {
		fmt.Printf("%s %s SOL -> %s\n", resp.State, resp.Amount, resp.To)
		fmt.Printf("  Tx:      %s\n", resp.TxID)
		fmt.Printf("  Retries: %d\n", resp.RetryCount)
		if resp.Reason != "" {
			fmt.Printf("  Reason:  %s\n", resp.Reason)
		}
	})
}

// output prints v as JSON with --json, otherwise runs text.
func output(c *cli.Context, v any, text func()) error {
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}
