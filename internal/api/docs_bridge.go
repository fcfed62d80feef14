package api

const bridgeDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Message Bridge · Booktabs</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; font-weight: 600; }
    h2 { border-bottom: 1px solid #30363d; padding-bottom: 4px; margin-top: 32px; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
    th { background: #161b22; }
  </style>
</head>
<body>
  <p><a href="/docs">← API reference</a></p>
  <h1>Message Bridge</h1>
  <p>
    Pages on the odds-comparison site talk to the controller with small JSON
    messages. Every message is acknowledged with <code>{"result":"OK"}</code>;
    tab failures are logged and journaled, never returned.
  </p>

  <h2>Actions</h2>
  <table>
    <tr><th>action</th><th>fields</th><th>effect</th></tr>
    <tr>
      <td><code>openSportsBookTabs</code></td>
      <td><code>book</code>, <code>gameInfo</code>, <code>settings</code>, <code>senderTabId</code></td>
      <td>Opens or updates one tab per book in the clicked book's odds group, next to the sender tab.</td>
    </tr>
    <tr>
      <td><code>closeSportsBookTabs</code></td>
      <td><code>settings</code></td>
      <td>Closes every tab on a known book hostname except the active tab and host-site tabs.</td>
    </tr>
    <tr>
      <td><code>openOptionsTab</code></td>
      <td></td>
      <td>Focuses the options page, opening it if needed.</td>
    </tr>
  </table>
  <p>
    <code>settings</code> may be the latest settings object or a versioned
    wrapper such as <code>{"v1": {...}}</code>. When it is missing the stored
    settings are used.
  </p>

  <h2>HTTP</h2>
  <pre>POST /api/v1/messages
{
  "action": "openSportsBookTabs",
  "book": "DraftKings",
  "gameInfo": {"homeTeam": "Lakers", "sport": "basketball", "league": "nba"}
}</pre>

  <h2>WebSocket</h2>
  <p>
    <code>GET /api/v1/messages/ws</code> upgrades to a WebSocket. Send one
    message per text frame; each gets one reply frame, in order. A frame that
    is not valid JSON gets <code>{"error": "..."}</code>.
  </p>

  <h2>Event stream</h2>
  <p>
    <code>GET /api/v1/events</code> is a Server-Sent Events stream of
    <code>message</code> events (one per handled message, with the journal
    entry as data) and <code>settings</code> events (one per successful
    settings write). Filter with <code>?types=message</code>.
  </p>
  <pre>id: 12
event: message
data: {"time":"2026-03-01T12:00:00Z","action":"openSportsBookTabs","book":"DraftKings","anchor":3,"result":{"peers":2,"created":2,"updated":0,"moved":0,"closed":0,"failed":0},"duration_ms":41}</pre>
</body>
</html>`
