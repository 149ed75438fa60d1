package sqlinline

const QInsertGalleryRecord = `--sql 155bc145-bf45-434d-b72e-4dab4b458306
insert into gallery_records(
  id,
  user_id,
  job_id,
  kind,
  media_url,
  prompt,
  auxiliary_urls,
  metadata,
  created_at,
  expires_at
) values (
  $1::uuid,
  $2::text,
  nullif($3::text, ''),
  $4::text,
  $5::text,
  $6::text,
  coalesce($7::jsonb, '[]'::jsonb),
  coalesce($8::jsonb, '{}'::jsonb),
  $9::timestamptz,
  $10::timestamptz
)
on conflict (user_id, job_id) where job_id is not null do nothing;
`

const QSelectGalleryRecord = `--sql f48549be-35eb-4651-9cf8-78f40ad1eece
select id, user_id, coalesce(job_id, ''), kind, media_url, prompt, auxiliary_urls, metadata, created_at, expires_at
from gallery_records
where id = $1::uuid
  and user_id = $2::text
limit 1;
`

const QListGalleryRecords = `--sql 260ac48d-8e36-4e2d-9249-c90d8eb52272
select id, user_id, coalesce(job_id, ''), kind, media_url, prompt, auxiliary_urls, metadata, created_at, expires_at
from gallery_records
where user_id = $1::text
  and expires_at > now()
order by created_at desc
limit $2::int offset $3::int;
`

const QDeleteGalleryRecord = `--sql 6fecd887-c453-40d3-9f14-581d677bf88c
delete from gallery_records
where id = $1::uuid
  and user_id = $2::text;
`

// QDeleteExpiredGalleryRecords removes one batch of expired rows; concurrent
// sweepers skip rows another sweeper already locked.
const QDeleteExpiredGalleryRecords = `--sql eb2e16b8-59d4-4b3a-b91e-fa20cf6b4908
with expired as (
    select id
    from gallery_records
    where expires_at <= $1::timestamptz
    order by expires_at asc
    for update skip locked
    limit $2::int
)
delete from gallery_records g
using expired
where g.id = expired.id
returning g.id, g.user_id, coalesce(g.job_id, ''), g.kind, g.media_url, g.prompt, g.auxiliary_urls, g.metadata, g.created_at, g.expires_at;
`
