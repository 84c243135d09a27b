package handlers

import "net/http"

// IndexHandler serves a minimal browser page for exercising the API
// and the lobby WebSocket by hand. Not a product surface.
func (s *Server) IndexHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexPage))
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>lobby coordinator test page</title>
<style>
body { font-family: monospace; margin: 2em; max-width: 50em; }
#log { border: 1px solid #999; padding: 0.5em; height: 20em; overflow-y: scroll; white-space: pre-wrap; }
input, button { font-family: inherit; margin: 0.2em; }
</style>
</head>
<body>
<h3>lobby coordinator</h3>
<div>
  device: <input id="device" value="dev-1" size="12">
  code: <input id="code" value="" size="6">
</div>
<div>
  <button onclick="call('POST','/lobby/create')">create</button>
  <button onclick="call('POST','/lobby/join',{code:code.value})">join</button>
  <button onclick="call('POST','/lobby/leave')">leave</button>
  <button onclick="call('POST','/lobby/ready',{is_ready:true})">ready</button>
  <button onclick="call('POST','/lobby/ready',{is_ready:false})">unready</button>
  <button onclick="call('GET','/lobby/status')">status</button>
  <button onclick="call('POST','/lobby/find_match')">find match</button>
  <button onclick="call('POST','/lobby/leave_queue')">leave queue</button>
  <button onclick="call('GET','/lobby/queue_status')">queue status</button>
  <button onclick="connect()">ws connect</button>
  <button onclick="ws && ws.close()">ws close</button>
</div>
<div id="log"></div>
<script>
let ws = null;
const log = (s) => {
  const el = document.getElementById('log');
  el.textContent += s + "\n";
  el.scrollTop = el.scrollHeight;
};
async function call(method, path, body) {
  const opts = { method, headers: { 'X-Device-ID': device.value, 'Content-Type': 'application/json' } };
  if (body) opts.body = JSON.stringify(body);
  const res = await fetch(path, opts);
  const data = await res.json();
  if (data.lobby && data.lobby.code) code.value = data.lobby.code;
  log(method + " " + path + " -> " + res.status + " " + JSON.stringify(data));
}
function connect() {
  const proto = location.protocol === 'https:' ? 'wss' : 'ws';
  ws = new WebSocket(proto + '://' + location.host + '/ws/lobby/' + code.value + '?device_id=' + device.value, 'lobby');
  ws.onopen = () => log("ws open");
  ws.onmessage = (e) => log("ws <- " + e.data);
  ws.onclose = (e) => log("ws closed (" + e.code + " " + e.reason + ")");
}
</script>
</body>
</html>
`
