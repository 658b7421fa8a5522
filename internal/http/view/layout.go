package view

import (
	"bytes"
	"fmt"
	"html/template"
)

// Page carries the fields every template reads.
type Page struct {
	Title     string
	User      string
	IsAdmin   bool
	CSRFToken string
	// Notice and Error render as banners above the page body.
	Notice string
	Error  string
}

const layoutTmpl = `
{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{if .Title}}{{.Title}} · {{end}}InviteGate</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			--danger: #fca5a5;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			flex-direction: column;
			align-items: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		nav {
			width: min(720px, 92vw);
			display: flex;
			gap: 16px;
			align-items: center;
			padding: 20px 0;
		}
		nav .brand { font-weight: 700; margin-right: auto; }
		nav a, nav button {
			color: var(--muted);
			text-decoration: none;
			background: none;
			border: none;
			font: inherit;
			cursor: pointer;
			padding: 0;
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(720px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			margin-bottom: 32px;
		}
		h1 { font-size: 1.5rem; margin: 0 0 6px; }
		p { color: var(--muted); margin-top: 0; }
		.banner {
			padding: 14px 18px;
			border-radius: 12px;
			margin-bottom: 20px;
			border: 1px solid rgba(125, 211, 252, 0.25);
			background: rgba(125, 211, 252, 0.07);
		}
		.banner.error {
			border-color: rgba(252, 165, 165, 0.35);
			background: rgba(252, 165, 165, 0.08);
			color: var(--danger);
		}
		label { display: block; margin: 16px 0 6px; color: var(--muted); font-size: 0.9rem; }
		input[type=text] {
			width: 100%;
			height: 44px;
			padding: 0 14px;
			border-radius: 10px;
			border: 1px solid var(--border);
			background: rgba(0,0,0,0.25);
			color: var(--text);
		}
		.button, button.button {
			display: inline-flex;
			align-items: center;
			justify-content: center;
			padding: 0 28px;
			height: 44px;
			margin-top: 20px;
			border-radius: 999px;
			border: none;
			background: linear-gradient(120deg, var(--accent), var(--accent-strong));
			color: #050708;
			font-weight: 600;
			text-decoration: none;
			cursor: pointer;
		}
		button.link { background: none; border: none; color: var(--danger); cursor: pointer; }
		table { width: 100%; border-collapse: collapse; margin-top: 16px; }
		th, td { text-align: left; padding: 10px 6px; border-bottom: 1px solid var(--border); word-break: break-all; }
		th { color: var(--muted); font-weight: 500; font-size: 0.85rem; }
		.muted { color: var(--muted); font-size: 0.85rem; }
		.inline { display: inline; }
	</style>
	{{block "head" .}}{{end}}
</head>
<body>
	<nav>
		<a class="brand" href="/">InviteGate</a>
		{{if .User}}
		<a href="/manage">My links</a>
		<a href="/create">New link</a>
		{{if .IsAdmin}}<a href="/admin">Admin</a>{{end}}
		<form class="inline" method="post" action="/logout">
			<input type="hidden" name="csrf_token" value="{{.CSRFToken}}" />
			<button type="submit">Log out</button>
		</form>
		{{else}}
		<a href="/login">Log in with Discord</a>
		{{end}}
	</nav>
	<div class="card">
		{{if .Notice}}<div class="banner">{{.Notice}}</div>{{end}}
		{{if .Error}}<div class="banner error">{{.Error}}</div>{{end}}
		{{template "content" .}}
	</div>
</body>
</html>
{{end}}
`

var pages = map[string]*template.Template{}

func register(name, body string) {
	t := template.Must(template.New(name).Parse(layoutTmpl))
	pages[name] = template.Must(t.Parse(body))
}

// Render expands the named page inside the shared layout.
func Render(name string, data any) (string, error) {
	t, ok := pages[name]
	if !ok {
		return "", fmt.Errorf("view: unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
