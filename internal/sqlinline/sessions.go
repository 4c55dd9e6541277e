package sqlinline

const QCreateBreedSessions = `--sql 4265d8e5-e632-411d-a461-5f2d8f4b9728
create table if not exists breed_sessions (
    id uuid primary key,
    animal_type text not null,
    snapshot jsonb not null,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QUpsertBreedSession = `--sql 64aa349d-757b-417b-9fdb-54a79d28c893
insert into breed_sessions (id, animal_type, snapshot, created_at, updated_at)
values ($1::uuid, $2::text, $3::jsonb, now(), now())
on conflict (id) do update set
    animal_type = excluded.animal_type,
    snapshot = excluded.snapshot,
    updated_at = now();
`

const QSelectBreedSession = `--sql b7ef0941-0dbb-4beb-b591-d3aa1f9b6418
select snapshot
from breed_sessions
where id = $1::uuid
limit 1;
`

const QDeleteBreedSession = `--sql 22200a85-8395-4e06-94fa-8b3e2766dade
delete from breed_sessions
where id = $1::uuid;
`
