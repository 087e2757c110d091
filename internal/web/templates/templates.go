// Package templates renders the web UI as templ components.
//
// Components are written in the .templ files next to this one; the
// *_templ.go files are generated from them with `templ generate`.
package templates

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/history"
)

// PageData configures the index page.
type PageData struct {
	Title       string
	MaxFileSize int64
	DefaultRows int
	PathInput   bool // Offer a server-side path field
}

func resultClass(res *core.SplitResult) string {
	if res.Error != "" {
		return "result partial"
	}
	return "result"
}

func resultSummary(res *core.SplitResult) string {
	return fmt.Sprintf("%d rows in %d files of up to %d rows (%s)",
		res.Rows, res.Chunks, res.ChunkSize, res.Encoding.Label())
}

func statusClass(s history.Status) string {
	return "status-" + string(s)
}

func historyTime(t time.Time) string {
	return t.Local().Format(time.DateTime)
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2933}
main{max-width:48rem;margin:2rem auto;padding:0 1rem}
form{display:grid;gap:.75rem;background:#fff;padding:1rem;border-radius:.5rem}
.hint{color:#616e7c;font-size:.875rem;margin:0}
.alert{background:#fde8e8;border:1px solid #f8b4b4;padding:.75rem;border-radius:.5rem}
.warn{color:#b45309}
.summary{display:grid;grid-template-columns:max-content 1fr;gap:.25rem 1rem}
.result{background:#e6f4ea;padding:.75rem;border-radius:.5rem;margin-top:1rem}
.result.partial{background:#fff7e6}
progress{width:100%}
table{width:100%;border-collapse:collapse;background:#fff}
td,th{padding:.25rem .5rem;border-bottom:1px solid #e4e7eb;text-align:left}`

const pageJS = `(function(){
const $=id=>document.getElementById(id);
const hx={'HX-Request':'true'};
let job=null;
async function html(url,opts){const r=await fetch(url,Object.assign({headers:hx},opts||{}));return r.text();}
async function history(){$('history').innerHTML=await html('/api/history');}
$('file').addEventListener('change',async()=>{
  const f=$('file').files[0];if(!f)return;
  const fd=new FormData();fd.append('file',f);
  const r=await fetch('/api/inspect',{method:'POST',body:fd,headers:hx});
  $('summary').innerHTML=await r.text();
  const n=r.headers.get('X-Suggested-Rows');
  if(r.ok&&n&&!$('rows').value)$('rows').value=n;
});
$('split-form').addEventListener('submit',async ev=>{
  ev.preventDefault();
  const fd=new FormData($('split-form'));
  const r=await fetch('/api/split',{method:'POST',body:fd});
  const body=await r.json();
  if(!r.ok){$('result').textContent=(body.message||body.error)+(body.action?' '+body.action:'');return;}
  job=body.jobId;$('bar').hidden=false;$('cancel').hidden=false;$('result').innerHTML='';
  const es=new EventSource('/api/split/'+job+'/progress');
  es.addEventListener('progress',e=>{const p=JSON.parse(e.data);$('bar').value=p.percent;$('phase').textContent=p.phase;});
  es.addEventListener('complete',async()=>{es.close();$('cancel').hidden=true;
    $('result').innerHTML=await html('/api/split/'+job+'/result');history();});
});
$('cancel').addEventListener('click',()=>{if(job)fetch('/api/split/'+job+'/cancel',{method:'POST'});});
$('result').addEventListener('click',async ev=>{
  const id=ev.target.dataset.resave;if(!id)return;
  $('result').innerHTML=await html('/api/split/'+id+'/resave',{method:'POST'});history();
});
history();
})();`
