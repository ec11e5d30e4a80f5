package console

import "html/template"

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>voxmesh — {{.Room}}</title>
<style>
  body { font: 14px/1.5 system-ui, sans-serif; background:#14161a; color:#e3e5e8; margin:0; padding:1rem; }
  h1 { font-size:1.1rem; }
  #roster li.muted::after { content:" (muted)"; color:#888; }
  #chat { max-height:40vh; overflow-y:auto; border:1px solid #2a2d33; padding:.5rem; }
  #chat .own .label { color:#8fb4ff; }
  .label { font-weight:600; margin-right:.4rem; }
  button { margin-right:.4rem; }
  #share { color:#9ad17b; }
</style>
</head>
<body>
<h1>voxmesh · {{.Room}} · {{.Self.Label}}</h1>
<p id="phase">…</p>
<p id="share"></p>
<div>
  <button id="mute">mute</button>
  <button id="deafen">deafen</button>
  <button id="sharebtn">share</button>
  <button id="hangup">hang up</button>
</div>
<h2>In call</h2>
<ul id="roster"></ul>
<h2>Chat</h2>
<div id="chat"></div>
<form id="send"><input id="body" autocomplete="off" placeholder="message…"><button>send</button></form>
<script>
let muted = false, deafened = false, sharing = false;
const state = () => fetch('/api/state').then(r => r.json()).then(s => {
  muted = s.muted; deafened = s.deafened; sharing = s.sharing;
  document.getElementById('phase').textContent = s.phase;
  document.getElementById('share').textContent =
    s.inbound_share.active ? 'watching ' + (s.inbound_share.from || '') : '';
});
const roster = () => fetch('/api/roster').then(r => r.json()).then(list => {
  const ul = document.getElementById('roster');
  ul.innerHTML = '';
  for (const p of list) {
    const li = document.createElement('li');
    li.textContent = p.label || p.id;
    if (p.muted) li.classList.add('muted');
    ul.appendChild(li);
  }
});
const addMsg = m => {
  const div = document.createElement('div');
  if (m.own) div.classList.add('own');
  div.innerHTML = '<span class="label"></span>' + m.html;
  div.querySelector('.label').textContent = m.label;
  const chat = document.getElementById('chat');
  chat.appendChild(div);
  chat.scrollTop = chat.scrollHeight;
};
fetch('/api/chat').then(r => r.json()).then(ms => ms.forEach(addMsg));
state(); roster();

const post = (path, on) => fetch(path, {method:'POST', body: JSON.stringify({on})}).then(state);
document.getElementById('mute').onclick = () => post('/api/mute', !muted);
document.getElementById('deafen').onclick = () => post('/api/deafen', !deafened);
document.getElementById('sharebtn').onclick = () => post('/api/share', !sharing);
document.getElementById('hangup').onclick = () => fetch('/api/hangup', {method:'POST'}).then(state);
document.getElementById('send').onsubmit = e => {
  e.preventDefault();
  const input = document.getElementById('body');
  if (!input.value) return;
  fetch('/api/chat', {method:'POST', body: JSON.stringify({body: input.value})});
  input.value = '';
};

const ws = new WebSocket('ws://' + location.host + '/ws');
ws.onmessage = ev => {
  const e = JSON.parse(ev.data);
  if (e.type === 'chat') addMsg(e.data);
  else if (e.type === 'roster') roster();
  else if (e.type === 'phase' || e.type === 'share') state();
};
</script>
</body>
</html>`))
