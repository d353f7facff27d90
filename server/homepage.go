package server

import (
	"net/http"

	"github.com/alecthomas/template"
	"github.com/reika0717/sparql-proxy/config"
)

type dashboardData struct {
	Version string
	Admin   bool
}

var dashboardTemplate = `<!doctype html>
<html>
<head>
	<title>sparql-proxy</title>
	<style>
	body {
		font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif;
		margin: 0 auto;
		max-width: 60em;
		padding: 0 1em;
	}
	h3 { padding: 10px 5px; }
	table { border-collapse: collapse; width: 100%; }
	td, th { border-bottom: 1px solid #ddd; padding: 4px 8px; text-align: left; }
	.state-running { color: #2a7; }
	.state-error, .state-cancelled { color: #c33; }
	#controls { margin: 1em 0; }
	</style>
</head>
<body>
	<h3>sparql-proxy version {{ .Version }}</h3>
	{{ if .Admin }}
	<div id="controls">
		<button id="purge">Purge cache</button>
	</div>
	{{ end }}
	<table id="jobs">
		<tr><th>id</th><th>state</th><th>query</th><th>created</th></tr>
	</table>
	<script>
	var proto = location.protocol === "https:" ? "wss:" : "ws:";
	var sock = new WebSocket(proto + "//" + location.host + "/live");
	sock.onmessage = function(ev) {
		var msg = JSON.parse(ev.data);
		if (msg.type !== "state") { return; }
		var rows = "<tr><th>id</th><th>state</th><th>query</th><th>created</th></tr>";
		var render = function(job) {
			rows += "<tr><td>" + job.id + "</td>" +
				"<td class=\"state-" + job.state + "\">" + job.state +
				(job.state === "waiting" || job.state === "running"
					? " <a href=\"#\" onclick=\"cancelJob('" + job.id + "');return false\">cancel</a>"
					: "") +
				"</td><td><code>" + job.query + "</code></td>" +
				"<td>" + job.created_at + "</td></tr>";
		};
		msg.running.forEach(render);
		msg.waiting.forEach(render);
		msg.recent.forEach(render);
		document.getElementById("jobs").innerHTML = rows;
	};
	function cancelJob(id) {
		sock.send(JSON.stringify({type: "cancel_job", id: id}));
	}
	var purge = document.getElementById("purge");
	if (purge) {
		purge.onclick = function() {
			sock.send(JSON.stringify({type: "purge_cache"}));
		};
	}
	</script>
</body>
</html>`

// GET /
//
// The queue dashboard. Without the admin cookie the live socket is
// refused, so the page is inert for ordinary visitors.
func (s *server) renderDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, s.isAdmin(r))
}

func (s *server) render(w http.ResponseWriter, admin bool) {
	tpl := template.Must(template.New("dashboard").Parse(dashboardTemplate))
	tpl.Execute(w, dashboardData{
		Version: config.Version,
		Admin:   admin,
	})
}
