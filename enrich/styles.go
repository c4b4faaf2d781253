package enrich

import "github.com/hazyhaar/twitchpreview/enrich/internal/marker"

// stylesheet is injected once per activation. Host elements are restyled
// only through rules keyed on marker attributes, so removing the markers
// restores them.
const stylesheet = `
[` + marker.Hidden + `] { display: none !important; }
[` + marker.Unit + `] { border-left-color: #9146ff !important; }
[` + marker.Unit + `] [class*="grid"] { grid-template-columns: 1fr !important; }
.` + marker.PreviewClass + ` {
	margin: 4px 16px 12px 12px;
	grid-column: 1 / -1;
	max-width: 400px;
}
.` + marker.PreviewClass + ` .twitch-frame {
	position: relative;
	width: 400px;
	height: 225px;
	border-radius: 8px;
	overflow: hidden;
	cursor: pointer;
	background: #000;
}
.` + marker.PreviewClass + ` .twitch-frame[` + marker.Playing + `] { cursor: default; }
.` + marker.PreviewClass + ` img {
	width: 100%;
	height: 100%;
	object-fit: cover;
	display: block;
}
.` + marker.PreviewClass + ` [hidden] { display: none !important; }
.` + marker.PreviewClass + ` .play-btn {
	position: absolute;
	top: 50%;
	left: 50%;
	transform: translate(-50%, -50%);
	width: 68px;
	height: 48px;
	background: rgba(145, 70, 255, 0.9);
	border-radius: 12px;
	display: flex;
	align-items: center;
	justify-content: center;
}
.` + marker.PreviewClass + ` .twitch-frame:hover .play-btn { background: #9146ff; }
.` + marker.PreviewClass + ` .live-badge {
	position: absolute;
	top: 10px;
	left: 10px;
	background: #eb0400;
	color: white;
	padding: 2px 6px;
	border-radius: 3px;
	font-size: 12px;
	font-weight: 600;
}
.` + marker.PreviewClass + ` iframe {
	position: absolute;
	top: 0;
	left: 0;
	width: 100%;
	height: 100%;
	border: none;
}
.` + marker.PreviewClass + ` .twitch-meta {
	display: flex;
	align-items: center;
	gap: 8px;
	padding-top: 6px;
	font-size: 14px;
}
.` + marker.PreviewClass + ` .twitch-title { font-weight: 600; }
.` + marker.PreviewClass + ` .twitch-stream-title {
	flex: 1;
	overflow: hidden;
	text-overflow: ellipsis;
	white-space: nowrap;
	opacity: 0.8;
}
.` + marker.PreviewClass + ` .open-btn {
	cursor: pointer;
	color: #bf94ff;
	text-decoration: none;
}
`
