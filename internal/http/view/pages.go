package view

import (
	"github.com/sifan077/InviteGate/internal/app/model"
)

const (
	PageLanding = "landing"
	PageMessage = "message"
	PageCreate  = "create"
	PageManage  = "manage"
	PageAdmin   = "admin"
	PageVerify  = "verify"
)

// MessagePage is the terminal page for errors and join results.
type MessagePage struct {
	Page
	Heading string
	Message string
	BackURL string
}

// CreatePage renders the mapping form.
type CreatePage struct {
	Page
	SiteKey       string
	CustomURL     string
	DiscordInvite string
	Remaining     int
}

// ManagePage lists the caller's mappings.
type ManagePage struct {
	Page
	BaseURL     string
	Mappings    []model.InviteMapping
	InviteLimit int
	Remaining   int
}

// AdminPage shows account search and the audit trail.
type AdminPage struct {
	Page
	Query    string
	Accounts []model.Account
	Events   []model.AuditEvent
}

// VerifyPage is the CAPTCHA gate in front of the join.
type VerifyPage struct {
	Page
	SiteKey   string
	CustomURL string
}

func init() {
	register(PageLanding, `{{define "content"}}
		<h1>Vanity invites for your Discord server</h1>
		<p>Create short links like <strong>/invite/your-name</strong>. Visitors pass a CAPTCHA and are added to your server after authorizing with Discord.</p>
		<a class="button" href="/login">Log in with Discord</a>
	{{end}}`)

	register(PageMessage, `{{define "content"}}
		<h1>{{.Heading}}</h1>
		<p>{{.Message}}</p>
		{{if .BackURL}}<a class="button" href="{{.BackURL}}">Back</a>{{end}}
	{{end}}`)

	register(PageCreate, `{{define "head"}}<script src="https://js.hcaptcha.com/1/api.js" async defer></script>{{end}}
	{{define "content"}}
		<h1>New vanity invite</h1>
		<p>You can create {{.Remaining}} more link{{if ne .Remaining 1}}s{{end}}.</p>
		<form method="post" action="/create">
			<input type="hidden" name="csrf_token" value="{{.CSRFToken}}" />
			<label for="custom_url">Custom URL (letters, digits, - and _)</label>
			<input type="text" id="custom_url" name="custom_url" value="{{.CustomURL}}" pattern="[A-Za-z0-9_-]+" required />
			<label for="discord_invite">Discord invite (https://discord.gg/...)</label>
			<input type="text" id="discord_invite" name="discord_invite" value="{{.DiscordInvite}}" required />
			<div class="h-captcha" data-sitekey="{{.SiteKey}}" style="margin-top:20px"></div>
			<button class="button" type="submit">Create link</button>
		</form>
	{{end}}`)

	register(PageManage, `{{define "content"}}
		<h1>Your invite links</h1>
		<p>{{len .Mappings}} of {{.InviteLimit}} used, {{.Remaining}} remaining.</p>
		{{if .Mappings}}
		<table>
			<tr><th>Link</th><th>Discord invite</th><th>Created</th><th></th></tr>
			{{range .Mappings}}
			<tr>
				<td><a href="/invite/{{.CustomURL}}">{{$.BaseURL}}/invite/{{.CustomURL}}</a></td>
				<td>{{.DiscordInvite}}</td>
				<td class="muted">{{.CreatedAt.Format "2006-01-02"}}</td>
				<td>
					<form class="inline" method="post" action="/delete">
						<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}" />
						<input type="hidden" name="custom_url" value="{{.CustomURL}}" />
						<button class="link" type="submit">Delete</button>
					</form>
				</td>
			</tr>
			{{end}}
		</table>
		{{else}}
		<p>No links yet.</p>
		{{end}}
		{{if gt .Remaining 0}}<a class="button" href="/create">New link</a>{{end}}
	{{end}}`)

	register(PageAdmin, `{{define "content"}}
		<h1>Accounts</h1>
		<form method="get" action="/admin">
			<label for="user_id">Discord id contains</label>
			<input type="text" id="user_id" name="user_id" value="{{.Query}}" />
			<button class="button" type="submit">Search</button>
		</form>
		<table>
			<tr><th>Discord id</th><th>Email</th><th>Limit</th><th></th></tr>
			{{range .Accounts}}
			<tr>
				<td>{{.DiscordID}}</td>
				<td>{{.EmailOrEmpty}}</td>
				<td>{{.InviteLimit}}</td>
				<td>
					<form class="inline" method="post" action="/admin/increase">
						<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}" />
						<input type="hidden" name="user_id" value="{{.DiscordID}}" />
						<button class="link" type="submit">+5</button>
					</form>
					<form class="inline" method="post" action="/admin/decrease">
						<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}" />
						<input type="hidden" name="user_id" value="{{.DiscordID}}" />
						<button class="link" type="submit">-5</button>
					</form>
				</td>
			</tr>
			{{else}}
			<tr><td colspan="4" class="muted">No accounts found.</td></tr>
			{{end}}
		</table>
		{{if .Events}}
		<h1 style="margin-top:32px">Recent activity</h1>
		<table>
			<tr><th>When</th><th>Kind</th><th>Subject</th><th>Actor</th><th>Outcome</th></tr>
			{{range .Events}}
			<tr>
				<td class="muted">{{.Timestamp.Format "2006-01-02 15:04"}}</td>
				<td>{{.Kind}}</td>
				<td>{{.Subject}}</td>
				<td>{{.Actor}}</td>
				<td>{{.Outcome}}</td>
			</tr>
			{{end}}
		</table>
		{{end}}
	{{end}}`)

	register(PageVerify, `{{define "head"}}<script src="https://js.hcaptcha.com/1/api.js" async defer></script>{{end}}
	{{define "content"}}
		<h1>One more step</h1>
		<p>Complete the CAPTCHA to join the server behind <strong>/invite/{{.CustomURL}}</strong>.</p>
		<form method="post" action="/verify/{{.CustomURL}}">
			<input type="hidden" name="csrf_token" value="{{.CSRFToken}}" />
			<div class="h-captcha" data-sitekey="{{.SiteKey}}"></div>
			<button class="button" type="submit">Join server</button>
		</form>
	{{end}}`)
}
