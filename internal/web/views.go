package web

// views.go holds the server-rendered screens as templ components built at
// runtime. The UI is deliberately small: one paste screen wired to the
// JSON API with a short inline script, and a static report page.

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

const pageCSS = `
body { font-family: system-ui, sans-serif; margin: 0; background: #f5f6f8; color: #1d2430; }
header { background: #14325c; color: #fff; padding: 0.8rem 1.5rem; }
header h1 { font-size: 1.1rem; margin: 0; }
main { max-width: 60rem; margin: 1.5rem auto; padding: 0 1rem; }
textarea { width: 100%; min-height: 14rem; font-family: ui-monospace, monospace; font-size: 0.9rem; padding: 0.6rem; border: 1px solid #c4ccd8; border-radius: 4px; box-sizing: border-box; }
select, button { font-size: 0.95rem; padding: 0.45rem 0.9rem; border-radius: 4px; border: 1px solid #c4ccd8; }
button { background: #14325c; color: #fff; cursor: pointer; border: none; }
button.secondary { background: #e7ebf1; color: #1d2430; }
button:disabled { opacity: 0.5; cursor: default; }
.row { display: flex; gap: 0.6rem; align-items: center; margin: 0.8rem 0; flex-wrap: wrap; }
.bar-track { background: #e7ebf1; border-radius: 4px; height: 0.6rem; overflow: hidden; margin: 0.6rem 0; }
.bar { background: #2f7d32; height: 100%; width: 0; transition: width 0.3s; }
.warn { color: #9a6700; }
.alert { background: #fdecea; border: 1px solid #e4a29b; border-radius: 4px; padding: 0.7rem 1rem; margin: 0.8rem 0; }
.alert .code { color: #7a1f16; font-size: 0.8rem; }
table { border-collapse: collapse; width: 100%; margin: 0.8rem 0; font-size: 0.9rem; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #e0e4ea; }
.ok { color: #2f7d32; }
.fail { color: #b3261e; }
`

// pageShell wraps body markup in the HTML shell shared by all screens.
func pageShell(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="vi"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><style>%s</style></head><body><header><h1>Dispatch Desk</h1></header><main>`,
			templ.EscapeString(title), pageCSS)
		if err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// PasteScreen is the main screen: paste a note, pick a customer, preview,
// then submit and watch progress.
func PasteScreen() templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, pasteScreenHTML)
		return err
	})
	return pageShell("Dispatch Desk", body)
}

// pasteScreenHTML is static: all dynamic data comes from the JSON API.
const pasteScreenHTML = `
<p>Paste the day's dispatch note below. Preview shows what each line parses to; submit creates one order per line.</p>
<textarea id="note" placeholder="185) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên ..." spellcheck="false"></textarea>
<div class="row">
  <label for="customer">Customer</label>
  <select id="customer"><option value="">-- chọn khách hàng --</option></select>
  <button class="secondary" id="preview-btn" type="button">Preview</button>
  <button id="submit-btn" type="button">Create orders</button>
  <button class="secondary" id="cancel-btn" type="button" disabled>Cancel</button>
</div>
<div class="bar-track"><div class="bar" id="bar"></div></div>
<p id="status"></p>
<div id="preview"></div>
<div id="report"></div>
<script>
(function () {
  var noteEl = document.getElementById('note');
  var customerEl = document.getElementById('customer');
  var previewEl = document.getElementById('preview');
  var reportEl = document.getElementById('report');
  var statusEl = document.getElementById('status');
  var barEl = document.getElementById('bar');
  var cancelBtn = document.getElementById('cancel-btn');
  var currentBatch = null;

  function esc(s) {
    var d = document.createElement('div');
    d.textContent = s == null ? '' : String(s);
    return d.innerHTML;
  }

  function showError(data, res) {
    statusEl.textContent = (data && (data.message || data.error)) || ('request failed (' + res.status + ')');
  }

  function loadCustomers() {
    fetch('/api/customers').then(function (res) {
      if (!res.ok) { return; }
      res.json().then(function (customers) {
        customers.forEach(function (c) {
          var opt = document.createElement('option');
          opt.value = c.id;
          opt.textContent = c.code + ' - ' + c.name;
          customerEl.appendChild(opt);
        });
      });
    }).catch(function () {});
  }

  function renderPreview(p) {
    var html = '<p>' + p.totalLines + ' lines parsed, ' + p.skippedLines + ' skipped';
    if (p.unmatchedDrivers > 0) { html += ', ' + p.unmatchedDrivers + ' drivers unmatched'; }
    html += '</p>';
    if (p.warning) { html += '<p class="warn">' + esc(p.warning) + '</p>'; }
    if (p.duplicateLineNumbers && p.duplicateLineNumbers.length > 0) {
      html += '<p class="warn">duplicate line numbers: ' + p.duplicateLineNumbers.join(', ') + '</p>';
    }
    if (p.lines && p.lines.length > 0) {
      html += '<table><tr><th>#</th><th>Driver</th><th>Pickup</th><th>Delivery</th><th>Size</th><th>Cargo</th></tr>';
      p.lines.forEach(function (lp) {
        var l = lp.line;
        var driver = lp.driverMatch ? esc(lp.driverMatch) : '<span class="warn">' + esc(l.driverName) + ' ?</span>';
        html += '<tr><td>' + l.lineNumber + '</td><td>' + driver + '</td><td>' + esc(l.pickupText) +
          '</td><td>' + esc(l.deliveryText) + '</td><td>' + esc(l.equipmentSize) + '</td><td>' + esc(l.cargoNote || '') + '</td></tr>';
      });
      html += '</table>';
    }
    previewEl.innerHTML = html;
  }

  function preview() {
    fetch('/api/batches/preview', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ text: noteEl.value })
    }).then(function (res) {
      res.json().then(function (data) {
        if (!res.ok) { showError(data, res); return; }
        statusEl.textContent = '';
        renderPreview(data);
      });
    });
  }

  function renderResult(r) {
    var html = '<h2>' + r.succeeded + '/' + r.totalLines + ' orders created' + (r.cancelled ? ' (cancelled)' : '') + '</h2>';
    if (r.error) { html += '<p class="fail">' + esc(r.error) + '</p>'; }
    (r.lines || []).forEach(function (line) {
      if (line.success) {
        html += '<div class="ok">✓ ' + line.lineNumber + ' ' + esc(line.orderCode) +
          (line.driverName ? ' (' + esc(line.driverName) + ')' : '') + '</div>';
      } else {
        html += '<div class="fail">✗ ' + line.lineNumber + ' ' + esc(line.error || '') + '</div>';
      }
    });
    html += '<p><a href="/api/batches/' + currentBatch + '/report.txt">plain-text report</a> | <a href="/batches/' + currentBatch + '">report page</a></p>';
    reportEl.innerHTML = html;
  }

  function loadResult(id) {
    fetch('/api/batches/' + id + '/result').then(function (res) {
      if (!res.ok) { return; }
      res.json().then(renderResult);
    });
  }

  function watch(id) {
    cancelBtn.disabled = false;
    var es = new EventSource('/api/batches/' + id + '/progress');
    es.addEventListener('progress', function (ev) {
      var p = JSON.parse(ev.data);
      barEl.style.width = (ev.lastEventId || '0') + '%';
      statusEl.textContent = p.phase + ': ' + p.processed + '/' + p.totalLines +
        (p.failed > 0 ? ' (' + p.failed + ' failed)' : '');
    });
    es.addEventListener('complete', function () {
      es.close();
      cancelBtn.disabled = true;
      loadResult(id);
    });
    es.onerror = function () { es.close(); };
  }

  function submit() {
    reportEl.innerHTML = '';
    fetch('/api/batches', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ text: noteEl.value, customer_id: customerEl.value })
    }).then(function (res) {
      res.json().then(function (data) {
        if (!res.ok) { showError(data, res); return; }
        currentBatch = data.batch_id;
        statusEl.textContent = 'batch started';
        watch(currentBatch);
      });
    });
  }

  function cancel() {
    if (!currentBatch) { return; }
    fetch('/api/batches/' + currentBatch + '/cancel', { method: 'POST' });
  }

  document.getElementById('preview-btn').addEventListener('click', preview);
  document.getElementById('submit-btn').addEventListener('click', submit);
  cancelBtn.addEventListener('click', cancel);
  loadCustomers();
})();
</script>
`

// BatchReportPage renders the per-line tick report for a finished batch.
func BatchReportPage(res *dispatch.BatchResult) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		suffix := ""
		if res.Cancelled {
			suffix = " (cancelled)"
		}
		if _, err := fmt.Fprintf(w, `<h2>Batch %s: %d/%d orders created%s</h2>`,
			templ.EscapeString(shortID(res.BatchID)), res.Succeeded, res.TotalLines, templ.EscapeString(suffix)); err != nil {
			return err
		}
		if res.Error != "" {
			if _, err := fmt.Fprintf(w, `<p class="fail">! %s</p>`, templ.EscapeString(res.Error)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `<table><tr><th></th><th>Line</th><th>Order</th><th>Driver</th><th>Error</th></tr>`); err != nil {
			return err
		}
		for _, line := range res.Lines {
			mark, class := `<span class="ok">&#10003;</span>`, "ok"
			if !line.Success {
				mark, class = `<span class="fail">&#10007;</span>`, "fail"
			}
			if _, err := fmt.Fprintf(w, `<tr class="%s"><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				class, mark, line.LineNumber,
				templ.EscapeString(line.OrderCode),
				templ.EscapeString(line.DriverName),
				templ.EscapeString(line.Error)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</table>`); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, `<p><a href="/api/batches/%s/report.txt">plain-text report</a> | <a href="/">new batch</a></p>`,
			templ.EscapeString(res.BatchID))
		return err
	})
	return pageShell("Batch report", body)
}

// ErrorAlert renders a user-facing error with its action hint and code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert" role="alert"><strong>%s</strong> %s <span class="code">(%s)</span></div>`,
			templ.EscapeString(message), templ.EscapeString(action), templ.EscapeString(code))
		return err
	})
}

// shortID trims a uuid to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
