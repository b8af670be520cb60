package logjs

// helpersJS installs the global log object that scripts use to pick apart
// service output. Go-backed helpers such as log.parseTimestamp are added
// to the same object after this runs.
const helpersJS = `
(function(){
  function parseJSON(line) {
    if (typeof line !== "string") return null;
    const s = line.trim();
    if (s === "" || (s[0] !== "{" && s[0] !== "[")) return null;
    try { return JSON.parse(s); } catch (e) { return null; }
  }

  // key=value pairs separated by spaces; values may be double quoted with
  // backslash escapes. A bare key becomes true.
  function parseLogfmt(line) {
    if (typeof line !== "string") return null;
    const out = {};
    const re = /([^\s=]+)(?:=("((?:[^"\\]|\\.)*)"|\S*))?/g;
    let m;
    let found = false;
    while ((m = re.exec(line)) !== null) {
      found = true;
      if (m[2] === undefined) { out[m[1]] = true; continue; }
      out[m[1]] = (m[3] !== undefined) ? m[3].replace(/\\(.)/g, "$1") : m[2];
    }
    return found ? out : null;
  }

  const LEVELS = [
    ["ERROR", /\b(ERROR|ERR|FATAL|PANIC|CRITICAL)\b/i],
    ["WARN", /\b(WARN|WARNING)\b/i],
    ["INFO", /\bINFO\b/i],
    ["DEBUG", /\b(DEBUG|TRACE)\b/i],
  ];

  // levelOf guesses the level of a plain text line from the first level
  // word it contains, or returns null.
  function levelOf(line) {
    if (typeof line !== "string") return null;
    for (const l of LEVELS) {
      if (l[1].test(line)) return l[0];
    }
    return null;
  }

  function namedCapture(line, re) {
    if (typeof line !== "string" || !(re instanceof RegExp)) return null;
    const m = re.exec(line);
    if (!m || !m.groups) return null;
    return Object.assign({}, m.groups);
  }

  function field(obj, path) {
    if (!obj || typeof path !== "string" || path === "") return null;
    let cur = obj;
    for (const p of path.split(".")) {
      if (cur == null) return null;
      cur = cur[p];
    }
    return (cur === undefined) ? null : cur;
  }

  globalThis.log = { parseJSON, parseLogfmt, levelOf, namedCapture, field };
})();
`
