package server

// DashboardHTML is served at /dashboard. It follows decisions over /ws and
// polls /api/status for the active algorithm, queue and viewer count.
const DashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>admit</title>
<style>
  body { font: 14px ui-monospace, Menlo, monospace; background: #111; color: #ddd; margin: 24px; }
  header { display: flex; gap: 32px; align-items: baseline; margin-bottom: 16px; }
  header b { color: #7cc4ff; font-size: 18px; }
  dl { display: flex; gap: 24px; margin: 0 0 16px; }
  dt { color: #888; font-size: 11px; }
  dd { margin: 0; font-size: 20px; }
  table { border-collapse: collapse; width: 100%; }
  th { text-align: left; color: #888; font-weight: normal; border-bottom: 1px solid #333; }
  td, th { padding: 4px 12px 4px 0; }
  .ok { color: #5fd068; }
  .no { color: #ff6b6b; }
</style>
</head>
<body>
<header>
  <b>admit</b>
  <span id="link" class="no">offline</span>
  <span>algorithm <span id="algo">-</span></span>
  <span>queue <span id="queue">-</span></span>
  <span>viewers <span id="viewers">-</span></span>
</header>

<dl>
  <div><dt>checks</dt><dd id="n-total">0</dd></div>
  <div><dt>admitted</dt><dd id="n-ok" class="ok">0</dd></div>
  <div><dt>rejected</dt><dd id="n-no" class="no">0</dd></div>
  <div><dt>reject %</dt><dd id="n-pct">0</dd></div>
</dl>

<table>
  <thead><tr><th>time</th><th>key</th><th>algorithm</th><th>decision</th></tr></thead>
  <tbody id="log"></tbody>
</table>

<script>
const KEEP = 200;
const counts = { total: 0, ok: 0, no: 0 };
const log = document.getElementById('log');
const $ = id => document.getElementById(id);

function text(tag, value, cls) {
  const el = document.createElement(tag);
  el.textContent = value;
  if (cls) el.className = cls;
  return el;
}

function record(ev) {
  counts.total++;
  ev.allowed ? counts.ok++ : counts.no++;
  $('n-total').textContent = counts.total;
  $('n-ok').textContent = counts.ok;
  $('n-no').textContent = counts.no;
  $('n-pct').textContent = (100 * counts.no / counts.total).toFixed(1);

  const tr = document.createElement('tr');
  tr.append(
    text('td', new Date(ev.time).toISOString().slice(11, 23)),
    text('td', ev.key),
    text('td', ev.algorithm),
    text('td', ev.allowed ? 'admit' : 'reject', ev.allowed ? 'ok' : 'no'));
  log.prepend(tr);
  while (log.rows.length > KEEP) log.deleteRow(-1);
}

function dial() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onopen = () => { $('link').textContent = 'live'; $('link').className = 'ok'; };
  ws.onclose = () => { $('link').textContent = 'offline'; $('link').className = 'no'; setTimeout(dial, 2000); };
  ws.onmessage = m => record(JSON.parse(m.data));
}

async function status() {
  try {
    const st = await (await fetch('/api/status')).json();
    $('algo').textContent = st.algorithm;
    $('viewers').textContent = st.clients;
    $('queue').textContent = st.queue_capacity ? st.queue_length + '/' + st.queue_capacity : '-';
  } catch (e) {}
}

dial();
status();
setInterval(status, 1000);
</script>
</body>
</html>`
