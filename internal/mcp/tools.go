package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

// Breath tools

var breathSubmitToolDef = mcp.NewTool("breath_submit",
	mcp.WithDescription("Submit an inbound breath fragment. Texts the content filter rejects are dropped and reported with dropped=true."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Fragment text")),
	mcp.WithString("id", mcp.Description("Breath id; defaults to message_id, then a generated inhale- id")),
	mcp.WithString("message_id", mcp.Description("Client message id (also accepted as a lookup alias)")),
	mcp.WithString("room_id", mcp.Description("Room the fragment came from")),
	mcp.WithString("user_id", mcp.Description("Author")),
	mcp.WithString("kind", mcp.Description("Free-form kind label")),
	mcp.WithString("inhale_id", mcp.Description("Upstream inhale id")),
	mcp.WithString("summary", mcp.Description("Short summary")),
	mcp.WithNumber("created_at", mcp.Description("Client clock in ms")),
	mcp.WithArray("central_topics", stringItems, mcp.Description("Central memory topics this fragment touches")),
	mcp.WithArray("persona_hints", stringItems, mcp.Description("Persona hints")),
)

var breathRecentToolDef = mcp.NewTool("breath_recent",
	mcp.WithDescription("List the newest breath items."),
	mcp.WithNumber("limit", mcp.Description("Number of items (default 10, max is the breath log cap)")),
)

var breathGetToolDef = mcp.NewTool("breath_get",
	mcp.WithDescription("Fetch one breath item by id or message id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Breath id or message id")),
)

var breathDeleteToolDef = mcp.NewTool("breath_delete",
	mcp.WithDescription("Remove one breath item by id or message id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Breath id or message id")),
)

var breathConsumeToolDef = mcp.NewTool("breath_consume",
	mcp.WithDescription("Mark a breath item consumed and record the consume events in the ha-coin ledger. Consuming twice keeps the first consumption."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Breath id or message id")),
	mcp.WithString("to", mcp.Description("Destination label (default central)")),
	mcp.WithString("reason", mcp.Description("Reason recorded on the item")),
	mcp.WithString("user_id", mcp.Description("Ledger user id")),
	mcp.WithString("persona", mcp.Description("Ledger persona")),
	mcp.WithArray("tags", stringItems, mcp.Description("Consume tags")),
)

// Purify tools

var purifyMoveToolDef = mcp.NewTool("purify_move",
	mcp.WithDescription("Quarantine a fragment into the purify bin, removing the matching breath item if one exists."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Fragment text")),
	mcp.WithString("reason", mcp.Description("Quarantine reason (default hold)")),
	mcp.WithString("message_id", mcp.Description("Message id of the source breath")),
	mcp.WithString("room_id", mcp.Description("Room of the source breath")),
	mcp.WithNumber("received_at", mcp.Description("receivedAt of the source breath in ms")),
	mcp.WithArray("tags", stringItems, mcp.Description("Tags")),
)

var purifyRestoreToolDef = mcp.NewTool("purify_restore",
	mcp.WithDescription("Move a purify item back into the breath log."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Purify item id")),
)

var purifySendToolDef = mcp.NewTool("purify_send",
	mcp.WithDescription("Move a purify item into a new meeting."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Purify item id")),
)

var purifyDeleteToolDef = mcp.NewTool("purify_delete",
	mcp.WithDescription("Permanently delete a purify item."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Purify item id")),
)

var purifyListToolDef = mcp.NewTool("purify_list",
	mcp.WithDescription("Return the purify bin."),
)

// Meeting tools

var meetingCreateToolDef = mcp.NewTool("meeting_create",
	mcp.WithDescription("Open a meeting over a source text. Candidates, topic and emotions are derived from the text."),
	mcp.WithString("source_text", mcp.Required(), mcp.Description("Text under deliberation")),
	mcp.WithString("meeting_id", mcp.Description("Meeting id; sanitized, generated when empty")),
	mcp.WithString("message_id", mcp.Description("Source message id")),
	mcp.WithString("room_id", mcp.Description("Source room id")),
	mcp.WithNumber("created_at", mcp.Description("Source client clock in ms")),
	mcp.WithNumber("received_at", mcp.Description("Source server clock in ms")),
)

var meetingGetToolDef = mcp.NewTool("meeting_get",
	mcp.WithDescription("Fetch a meeting by id."),
	mcp.WithString("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
)

var meetingReviseToolDef = mcp.NewTool("meeting_revise",
	mcp.WithDescription("Append a new after-language version to a meeting."),
	mcp.WithString("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
	mcp.WithArray("lines", mcp.Required(), stringItems, mcp.Description("After-language lines; blanks are dropped")),
	mcp.WithObject("spec_snapshot", mcp.Description("Opaque snapshot stored with the version")),
)

// Central tools

var centralPromoteToolDef = mcp.NewTool("central_promote",
	mcp.WithDescription("Promote a meeting statement into central memory and record a promote event."),
	mcp.WithString("meeting_id", mcp.Required(), mcp.Description("Meeting id")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Definition text")),
	mcp.WithString("summary", mcp.Description("Summary (default: text)")),
	mcp.WithString("topic", mcp.Description("Topic")),
)

var centralWriteToolDef = mcp.NewTool("central_write",
	mcp.WithDescription("Write a definition directly into central memory."),
	mcp.WithString("text", mcp.Description("Definition text (or body)")),
	mcp.WithString("body", mcp.Description("Alias for text; takes precedence")),
	mcp.WithString("summary", mcp.Description("Summary")),
	mcp.WithString("title", mcp.Description("Alias for summary; takes precedence")),
	mcp.WithString("topic", mcp.Description("Topic")),
	mcp.WithString("id", mcp.Description("Definition id; generated when empty")),
	mcp.WithObject("meta", mcp.Description("Free-form metadata (default {from: app-direct})")),
)

var centralListToolDef = mcp.NewTool("central_list",
	mcp.WithDescription("Return central memory."),
)

// Ha-coin tools

var hacoinPostToolDef = mcp.NewTool("hacoin_post",
	mcp.WithDescription("Append an event to the ha-coin ledger. Positive deltas are promote events, negative deltas penalties."),
	mcp.WithNumber("delta", mcp.Required(), mcp.Description("Non-zero amount")),
	mcp.WithString("reason", mcp.Description("Reason")),
	mcp.WithString("user_id", mcp.Description("User id")),
	mcp.WithString("message_id", mcp.Description("Message id")),
	mcp.WithString("inhale_id", mcp.Description("Inhale id")),
	mcp.WithString("summary", mcp.Description("Summary")),
)

var hacoinLedgerToolDef = mcp.NewTool("hacoin_ledger",
	mcp.WithDescription("Return the newest ha-coin events, oldest first."),
	mcp.WithNumber("limit", mcp.Description("Number of events (default 200)")),
)
