package mcp

import "github.com/mark3labs/mcp-go/mcp"

var userIDOption = mcp.WithString("user_id",
	mcp.Description("Authenticated user ID. Omit to use the guest cart stored on this device."),
)

var productIDOption = mcp.WithString("product_id",
	mcp.Required(),
	mcp.Description("Product ID of the cart line"),
)

var addToolDef = mcp.NewTool("cart_add",
	mcp.WithDescription("Add a product to the cart. Guest carts persist the amount locally; "+
		"authenticated carts are sent to the cart API, which is created on first use."),
	productIDOption,
	mcp.WithString("name", mcp.Description("Product display name")),
	mcp.WithNumber("price", mcp.Description("Unit price")),
	mcp.WithString("description", mcp.Description("Product description (markdown)")),
	mcp.WithNumber("amount", mcp.Description("Units to add (default 1)")),
	userIDOption,
)

var showToolDef = mcp.NewTool("cart_show",
	mcp.WithDescription("Show the cart lines, totals and, optionally, the stored guest record."),
	mcp.WithBoolean("include_guest", mcp.Description("Attach the persisted guest record")),
	userIDOption,
)

var removeToolDef = mcp.NewTool("cart_remove",
	mcp.WithDescription("Remove a product line from the cart."),
	productIDOption,
	userIDOption,
)

var incrementToolDef = mcp.NewTool("cart_increment",
	mcp.WithDescription("Add one unit to a product already in the cart."),
	productIDOption,
	userIDOption,
)

var decrementToolDef = mcp.NewTool("cart_decrement",
	mcp.WithDescription("Remove one unit from a product line; the line is dropped at zero."),
	productIDOption,
	userIDOption,
)

var clearToolDef = mcp.NewTool("cart_clear",
	mcp.WithDescription("Remove every line from the cart."),
	userIDOption,
)
