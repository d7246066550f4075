package mcpserver

// ImportFormatContract describes the canonical import payload format that
// LLM consumers should follow when ingesting channel content.
const ImportFormatContract = `# Graft Import Format Contract

Channel content enters graft through JSON payloads. Every payload MUST
follow this structure.

## Node descriptor

` + "```" + `json
{
  "node_id": "32-char hex id",          // REQUIRED - position identity, stable per authored slot
  "content_id": "32-char hex id",       // REQUIRED - content identity, shared by copies
  "title": "Fractions",                 // REQUIRED
  "kind": "topic",                      // REQUIRED - topic, video, exercise, document, ...
  "description": "",
  "license": "CC BY",                   // must name a known license for non-topic nodes
  "license_description": "",
  "language": "en",
  "author": "",
  "aggregator": "",
  "provider": "",
  "copyright_holder": "",
  "role_visibility": "learner",         // learner (default) or coach
  "source_id": "",
  "source_domain": "",
  "extra_fields": "{}",                 // free-form JSON string
  "files": [
    {
      "checksum": "sha256 hex digest",  // REQUIRED
      "preset_id": "video_high_res",    // REQUIRED - one slot per preset
      "language": "en",
      "source_url": "",
      "file_format": "mp4",
      "file_size": 1048576
    }
  ],
  "questions": [                        // exercise nodes only
    {
      "assessment_id": "32-char hex id", // REQUIRED
      "type": "single_selection",
      "question": "",
      "hints": "[]",
      "answers": "[]",
      "raw_data": "",
      "source_url": "",
      "randomize": false
    }
  ],
  "tags": ["fractions", "grade-4"]
}
` + "```" + `

## Rules

1. **Identity is dual.** ` + "`" + `node_id` + "`" + ` names the authored slot; ` + "`" + `content_id` + "`" + ` names the
   underlying content. Copies of the same content at different positions share a
   ` + "`" + `content_id` + "`" + ` but never a ` + "`" + `node_id` + "`" + `.
2. **Resubmitting the same ` + "`" + `node_id` + "`" + ` under the same parent is a no-op.** Imports are
   safe to retry.
3. **Files are keyed by ` + "`" + `preset_id` + "`" + `.** Uploading a second file with the same preset
   replaces the slot.
4. **Structural payloads** are uploaded to the content-addressed store first (via the
   ` + "`" + `upload_payload` + "`" + ` tool or out of band) and referenced by the returned
   ` + "`" + `digest.json` + "`" + ` name:

` + "```" + `json
{
  "structure": {
    "<payload ref>": {
      "order": 1,
      "children": {
        "<payload ref>": { "order": 1, "children": {} }
      }
    }
  }
}
` + "```" + `

   Exactly one root entry is required.

## Flow

1. ` + "`" + `POST /api/channels` + "`" + ` creates the channel and returns the chef root.
2. ` + "`" + `POST /api/nodes/{root}/children` + "`" + ` imports descriptors level by level, or
   ` + "`" + `POST /api/channels/{id}/structure` + "`" + ` ingests a whole nested payload at once.
3. ` + "`" + `POST /api/channels/{id}/commit` + "`" + ` promotes the chef tree to staging.
4. ` + "`" + `GET /api/channels/{id}/diff` + "`" + ` previews the staged changes.
5. ` + "`" + `POST /api/channels/{id}/activate` + "`" + ` makes the staged tree live.
`
