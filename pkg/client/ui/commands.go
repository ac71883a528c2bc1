package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aeolun/auboutique/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
)

type command struct {
	usage    string
	help     string
	minArgs  int
	needAuth bool
	run      func(m *Model, args []string) tea.Cmd
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {usage: "/help", help: "Show this help", run: (*Model).cmdHelp},
		"register": {usage: "/register <user> <password> <name> <email>", help: "Create an account", minArgs: 4, run: (*Model).cmdRegister},
		"login":    {usage: "/login <user> <password>", help: "Log in", minArgs: 2, run: (*Model).cmdLogin},
		"logout":   {usage: "/logout", help: "Log out", needAuth: true, run: (*Model).cmdLogout},
		"products": {usage: "/products [search...]", help: "List or search products for sale", run: (*Model).cmdProducts},
		"category": {usage: "/category <name>", help: "List products for sale in a category", minArgs: 1, run: (*Model).cmdCategory},
		"mine":     {usage: "/mine", help: "List your products", needAuth: true, run: (*Model).cmdMine},
		"sell":     {usage: "/sell <name> <price> <description...> [#category]", help: "Put a product up for sale", minArgs: 3, needAuth: true, run: (*Model).cmdSell},
		"image":    {usage: "/image <id> <file>", help: "Save a product's image to a file", minArgs: 2, run: (*Model).cmdImage},
		"buy":      {usage: "/buy <id>", help: "Buy a product", minArgs: 1, needAuth: true, run: (*Model).cmdBuy},
		"rate":     {usage: "/rate <id> <1-5>", help: "Rate a product", minArgs: 2, needAuth: true, run: (*Model).cmdRate},
		"wish":     {usage: "/wish <id>", help: "Add a product to your wishlist", minArgs: 1, needAuth: true, run: (*Model).cmdWish},
		"unwish":   {usage: "/unwish <id>", help: "Remove a product from your wishlist", minArgs: 1, needAuth: true, run: (*Model).cmdUnwish},
		"wishlist": {usage: "/wishlist", help: "Show your wishlist", needAuth: true, run: (*Model).cmdWishlist},
		"online":   {usage: "/online", help: "List online users", run: (*Model).cmdOnline},
		"msg":      {usage: "/msg <user> <text...>", help: "Send a chat message", minArgs: 2, needAuth: true, run: (*Model).cmdMsg},
		"notify":   {usage: "/notify", help: "Toggle desktop notifications", run: (*Model).cmdNotify},
		"quit":     {usage: "/quit", help: "Exit", run: func(*Model, []string) tea.Cmd { return tea.Quit }},
	}
}

// helpOrder is the order commands are listed in /help
var helpOrder = []string{
	"help", "register", "login", "logout", "products", "category", "mine", "sell",
	"image", "buy", "rate", "wish", "unwish", "wishlist", "online", "msg", "notify", "quit",
}

// execute parses an input line and runs the matching command
func (m Model) execute(line string) (tea.Model, tea.Cmd) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		m.appendLine(lineInfo, "Commands start with /. Type /help for a list.")
		return m, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		m.appendLine(lineInfo, "Type /help for a list of commands.")
		return m, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	c, ok := commands[name]
	if !ok {
		m.appendLine(lineError, fmt.Sprintf("Unknown command /%s. Type /help for a list.", name))
		return m, nil
	}
	if len(args) < c.minArgs {
		m.appendLine(lineError, "Usage: "+c.usage)
		return m, nil
	}
	if c.needAuth && m.username == "" {
		m.appendLine(lineError, "Log in first with /login")
		return m, nil
	}

	cmd := c.run(&m, args)
	return m, cmd
}

func (m *Model) cmdHelp([]string) tea.Cmd {
	m.appendLines(lo.Map(helpOrder, func(name string, _ int) logLine {
		c := commands[name]
		return logLine{kind: lineInfo, text: fmt.Sprintf("%-45s %s", c.usage, c.help)}
	}))
	return nil
}

func (m *Model) cmdRegister(args []string) tea.Cmd {
	username, password, name, email := args[0], args[1], args[2], args[3]
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.Register(ctx, username, password, name, email)
		return responseResult(resp, err)
	})
}

func (m *Model) cmdLogin(args []string) tea.Cmd {
	username, password := args[0], args[1]
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.Login(ctx, username, password)
		result := responseResult(resp, err)
		if err == nil {
			result.login = username
		}
		return result
	})
}

func (m *Model) cmdLogout([]string) tea.Cmd {
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.Logout(ctx)
		result := responseResult(resp, err)
		result.loggedOut = err == nil
		return result
	})
}

func (m *Model) cmdProducts(args []string) tea.Cmd {
	agent := m.agent
	if len(args) > 0 {
		query := strings.Join(args, " ")
		return m.call(func(ctx context.Context) resultMsg {
			products, err := agent.SearchProducts(ctx, query, "")
			return productsResult(fmt.Sprintf("No products match %q", query), products, err)
		})
	}
	return m.call(func(ctx context.Context) resultMsg {
		products, err := agent.ListProducts(ctx)
		return productsResult("No products for sale", products, err)
	})
}

func (m *Model) cmdCategory(args []string) tea.Cmd {
	category := strings.Join(args, " ")
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		products, err := agent.SearchProducts(ctx, "", category)
		return productsResult(fmt.Sprintf("No products in %s", category), products, err)
	})
}

func (m *Model) cmdMine([]string) tea.Cmd {
	agent, username := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		products, err := agent.UserProducts(ctx, username)
		return productsResult("You have no products", products, err)
	})
}

func (m *Model) cmdSell(args []string) tea.Cmd {
	name := args[0]
	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil || price <= 0 {
		m.appendLine(lineError, "Price must be a positive number")
		return nil
	}
	words, category := args[2:], ""
	if last := words[len(words)-1]; len(words) > 1 && len(last) > 1 && strings.HasPrefix(last, "#") {
		words, category = words[:len(words)-1], last[1:]
	}
	description := strings.Join(words, " ")

	agent, seller := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		id, err := agent.AddProduct(ctx, seller, name, price, description, category, nil)
		if err != nil {
			return errorResult(err)
		}
		return resultMsg{lines: []logLine{{kind: lineSuccess, text: fmt.Sprintf("Listed %s as product #%d", name, id)}}}
	})
}

func (m *Model) cmdImage(args []string) tea.Cmd {
	id, ok := m.productID(args[0])
	if !ok {
		return nil
	}
	path := strings.Join(args[1:], " ")
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		image, imageType, err := agent.ProductImage(ctx, id)
		if err != nil {
			return errorResult(err)
		}
		if len(image) == 0 {
			return resultMsg{lines: []logLine{{kind: lineInfo, text: fmt.Sprintf("Product #%d has no image", id)}}}
		}
		if err := os.WriteFile(path, image, 0644); err != nil {
			return errorResult(err)
		}
		return resultMsg{lines: []logLine{{kind: lineSuccess, text: fmt.Sprintf("Saved %s (%d bytes) to %s", imageType, len(image), path)}}}
	})
}

func (m *Model) cmdBuy(args []string) tea.Cmd {
	id, ok := m.productID(args[0])
	if !ok {
		return nil
	}
	agent, buyer := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.BuyProduct(ctx, id, buyer)
		return responseResult(resp, err)
	})
}

func (m *Model) cmdRate(args []string) tea.Cmd {
	id, ok := m.productID(args[0])
	if !ok {
		return nil
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil || rating < 1 || rating > 5 {
		m.appendLine(lineError, "Rating must be a whole number from 1 to 5")
		return nil
	}
	agent, username := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.RateProduct(ctx, id, username, rating)
		return responseResult(resp, err)
	})
}

func (m *Model) cmdWish(args []string) tea.Cmd {
	id, ok := m.productID(args[0])
	if !ok {
		return nil
	}
	agent, username := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.AddToWishlist(ctx, username, id)
		return responseResult(resp, err)
	})
}

func (m *Model) cmdUnwish(args []string) tea.Cmd {
	id, ok := m.productID(args[0])
	if !ok {
		return nil
	}
	agent, username := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		resp, err := agent.RemoveFromWishlist(ctx, username, id)
		return responseResult(resp, err)
	})
}

func (m *Model) cmdWishlist([]string) tea.Cmd {
	agent, username := m.agent, m.username
	return m.call(func(ctx context.Context) resultMsg {
		products, err := agent.Wishlist(ctx, username)
		return productsResult("Your wishlist is empty", products, err)
	})
}

func (m *Model) cmdOnline([]string) tea.Cmd {
	agent := m.agent
	return m.call(func(ctx context.Context) resultMsg {
		users, err := agent.OnlineUsers(ctx)
		if err != nil {
			return errorResult(err)
		}
		if len(users) == 0 {
			return resultMsg{lines: []logLine{{kind: lineInfo, text: "Nobody is online"}}}
		}
		return resultMsg{lines: []logLine{{kind: lineInfo, text: "Online: " + strings.Join(users, ", ")}}}
	})
}

func (m *Model) cmdMsg(args []string) tea.Cmd {
	to, text := args[0], strings.Join(args[1:], " ")
	agent, from := m.agent, m.username
	m.appendLines([]logLine{{kind: lineChat, from: from + " -> " + to, text: text}})
	return m.call(func(ctx context.Context) resultMsg {
		_, err := agent.SendChat(ctx, from, to, text)
		if err != nil {
			return errorResult(err)
		}
		return resultMsg{}
	})
}

func (m *Model) cmdNotify([]string) tea.Cmd {
	m.notify = !m.notify
	if err := m.state.SetNotificationsEnabled(m.notify); err != nil {
		m.logf("Failed to save notification setting: %v", err)
	}
	if m.notify {
		m.appendLine(lineInfo, "Desktop notifications on")
	} else {
		m.appendLine(lineInfo, "Desktop notifications off")
	}
	return nil
}

func (m *Model) productID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		m.appendLine(lineError, fmt.Sprintf("Invalid product id %q", arg))
		return 0, false
	}
	return id, true
}

func responseResult(resp *protocol.Response, err error) resultMsg {
	if err != nil {
		return errorResult(err)
	}
	return resultMsg{lines: []logLine{{kind: lineSuccess, text: resp.Message}}}
}

func errorResult(err error) resultMsg {
	text := err.Error()
	var perr *protocol.Error
	if errors.As(err, &perr) {
		text = perr.Message
	}
	return resultMsg{lines: []logLine{{kind: lineError, text: "Error: " + text}}}
}

func productsResult(empty string, products []protocol.Product, err error) resultMsg {
	if err != nil {
		return errorResult(err)
	}
	if len(products) == 0 {
		return resultMsg{lines: []logLine{{kind: lineInfo, text: empty}}}
	}
	return resultMsg{lines: lo.Map(products, func(p protocol.Product, _ int) logLine {
		if p.Sold {
			return logLine{kind: lineSold, text: formatProduct(p)}
		}
		return logLine{kind: lineInfo, text: formatProduct(p)}
	})}
}

func formatProduct(p protocol.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s  $%.2f  by %s", p.ID, p.Name, p.Price, p.Seller)
	if p.Category != "" {
		b.WriteString("  [" + p.Category + "]")
	}
	if p.Ratings > 0 {
		fmt.Fprintf(&b, "  %.1f/5 (%d)", p.Rating, p.Ratings)
	}
	if p.Sold {
		b.WriteString("  [sold")
		if p.Buyer != "" {
			b.WriteString(" to " + p.Buyer)
		}
		b.WriteString("]")
	}
	if p.Description != "" {
		b.WriteString("  - " + p.Description)
	}
	return b.String()
}
