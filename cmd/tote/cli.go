package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/config"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/session"
	"github.com/hpungsan/tote/internal/web"
)

// env bundles what the commands operate on.
type env struct {
	cart *session.ShoppingCart
	cfg  *config.Config
	log  *zap.Logger
	out  io.Writer // defaults to os.Stdout
}

func (rt *env) stdout() io.Writer {
	if rt.out != nil {
		return rt.out
	}
	return os.Stdout
}

// newCLIApp creates the CLI application with all commands.
// rt may be nil when only help or version output is needed.
func newCLIApp(rt *env) *cli.App {
	app := &cli.App{
		Name:    "tote",
		Usage:   "Shopping cart for guests and signed-in users",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				EnvVars: []string{"TOTE_USER"},
				Usage:   "Authenticated user ID (omit for the guest cart)",
			},
		},
		// Every invocation starts from a rehydrated cart.
		Before: func(c *cli.Context) error {
			if rt != nil {
				rt.cart.Rehydrate(c.Context, c.String("user"))
			}
			return nil
		},
		Commands: []*cli.Command{
			addCmd(rt),
			showCmd(rt),
			lineCmd(rt, "remove", "Remove a product line", removeOp),
			lineCmd(rt, "inc", "Add one unit of a product", incrementOp),
			lineCmd(rt, "dec", "Remove one unit of a product", decrementOp),
			clearCmd(rt),
			serveCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addCmd creates the add command.
func addCmd(rt *env) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a product to the cart",
		ArgsUsage: "<product-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Product name"},
			&cli.Float64Flag{Name: "price", Aliases: []string{"p"}, Usage: "Unit price"},
			&cli.IntFlag{Name: "amount", Aliases: []string{"a"}, Value: 1, Usage: "Units to add"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Product description (markdown)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("add takes exactly one product id"))
			}
			p := cart.Product{
				ID:          c.Args().First(),
				Name:        c.String("name"),
				Price:       c.Float64("price"),
				Description: c.String("description"),
			}

			result, err := rt.cart.AddToCart(c.Context, p, c.Int("amount"), c.String("user"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(rt.stdout(), map[string]any{
				"result": result,
				"cart":   rt.cart.Snapshot(c.Context, false),
			})
		},
	}
}

// showCmd creates the show command.
func showCmd(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print the cart",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "guest", Usage: "Include the stored guest record"},
		},
		Action: func(c *cli.Context) error {
			return outputJSON(rt.stdout(), rt.cart.Snapshot(c.Context, c.Bool("guest")))
		},
	}
}

type lineOp func(rt *env, c *cli.Context, productID string) (cart.State, error)

func removeOp(rt *env, c *cli.Context, productID string) (cart.State, error) {
	return rt.cart.Remove(c.Context, productID, c.String("user"))
}

func incrementOp(rt *env, c *cli.Context, productID string) (cart.State, error) {
	return rt.cart.Increment(c.Context, productID, c.String("user"))
}

func decrementOp(rt *env, c *cli.Context, productID string) (cart.State, error) {
	return rt.cart.Decrement(c.Context, productID, c.String("user"))
}

// lineCmd creates a command acting on a single cart line.
func lineCmd(rt *env, name, usage string, op lineOp) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<product-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest(name + " takes exactly one product id"))
			}
			if _, err := op(rt, c, c.Args().First()); err != nil {
				return outputError(err)
			}
			return outputJSON(rt.stdout(), rt.cart.Snapshot(c.Context, false))
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every line from the cart",
		Action: func(c *cli.Context) error {
			if _, err := rt.cart.Clear(c.Context, c.String("user")); err != nil {
				return outputError(err)
			}
			return outputJSON(rt.stdout(), rt.cart.Snapshot(c.Context, false))
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the cart web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (overrides web_bind)"},
			&cli.IntFlag{Name: "port", Usage: "Port (overrides web_port)"},
		},
		Action: func(c *cli.Context) error {
			cfg := *rt.cfg
			if bind := c.String("bind"); bind != "" {
				cfg.WebBind = bind
			}
			if port := c.Int("port"); port != 0 {
				cfg.WebPort = port
			}
			if cfg.WebPort < 0 || cfg.WebPort > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", cfg.WebPort)))
			}

			srv := web.NewServer(rt.cart, &cfg, rt.log, Version, c.String("user"))
			if err := web.Run(c.Context, srv, rt.log); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
